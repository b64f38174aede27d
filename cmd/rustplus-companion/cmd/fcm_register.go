package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	companion "github.com/moss-dev/rustplus-companion"
	"github.com/moss-dev/rustplus-companion/fcm"
	"github.com/spf13/cobra"
)

var fcmRegisterCmd = &cobra.Command{
	Use:   "fcm-register",
	Short: "Run the full registration and pairing flow",
	Long: `Performs device check-in, FCM registration, Expo token bridging, and the
browser-mediated pairing step, then writes the credential bundle into the
config file. A failed run leaves no partial state and can simply be rerun.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		noLaunch, _ := cmd.Flags().GetBool("no-launch")
		pairURL, _ := cmd.Flags().GetString("url")
		apiBase, _ := cmd.Flags().GetString("dataRust")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store := companion.NewStore(configFile, nil)
		exchange := companion.NewExchange(companion.WithAPIBase(apiBase))
		registrar := companion.NewRegistrar(fcm.DefaultAppConfig(), store, exchange,
			companion.WithPairingOptions(
				companion.WithPairingHost(host),
				companion.WithPairingLoginURL(pairURL),
				companion.WithBrowserLaunch(!noLaunch),
			),
		)

		fmt.Fprintln(os.Stderr, "Registering with FCM and pairing with Rust+ ...")
		bundle, err := registrar.Run(ctx)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		summary := map[string]string{
			"config_file":       store.Path(),
			"android_id":        bundle.FCMCredentials.GCM.AndroidID,
			"fcm_token_prefix":  prefix(bundle.FCMCredentials.FCM.Token, 12),
			"expo_token_prefix": prefix(bundle.ExpoPushToken, 12),
		}
		if info, err := companion.InspectAuthToken(bundle.RustPlusAuthToken); err == nil && info.SteamID != "" {
			summary["steam_id"] = info.SteamID
		}

		if useYAML {
			yamlOut(summary)
		} else {
			fmt.Println("Registration complete.")
			if steamID, ok := summary["steam_id"]; ok {
				fmt.Printf("Paired Steam account: %s\n", steamID)
			}
			fmt.Printf("Credentials saved to %s\n", store.Path())
			fmt.Println("Run 'rustplus-companion fcm-listen' to receive pairing notifications.")
		}
		return nil
	},
}

func init() {
	fcmRegisterCmd.Flags().String("host", "127.0.0.1", "Interface the local pairing server binds to")
	fcmRegisterCmd.Flags().Bool("no-launch", false, "Do not try to open a browser for the pairing step")
	fcmRegisterCmd.Flags().String("url", "", "Override the companion login URL used for pairing")
	fcmRegisterCmd.Flags().String("dataRust", "", "Override the companion API base URL")
	rootCmd.AddCommand(fcmRegisterCmd)
}

// prefix returns the first n characters of s; tokens are never printed in
// full.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
