package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	companion "github.com/moss-dev/rustplus-companion"
	"github.com/spf13/cobra"
)

var pairOpenCmd = &cobra.Command{
	Use:   "pair-open",
	Short: "Run only the pairing step and refresh the stored auth token",
	Long: `Hosts the local pairing server, opens the companion login page, and waits
for the auth token via the browser redirect or manual paste. The token is
merged into the config file; existing push credentials are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		noLaunch, _ := cmd.Flags().GetBool("no-launch")
		pairURL, _ := cmd.Flags().GetString("url")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		session := companion.NewPairingSession(
			companion.WithPairingHost(host),
			companion.WithPairingLoginURL(pairURL),
			companion.WithBrowserLaunch(!noLaunch),
		)
		if err := session.Start(); err != nil {
			return err
		}
		defer session.Close()

		fmt.Fprintf(os.Stderr, "Waiting for pairing at %s (Ctrl+C to abort) ...\n", session.URL())
		token, err := session.Wait(ctx)
		if err != nil {
			return err
		}

		store := companion.NewStore(configFile, nil)
		if err := store.SaveAuthToken(token); err != nil {
			return err
		}

		summary := map[string]string{"config_file": store.Path()}
		if info, err := companion.InspectAuthToken(token); err == nil {
			if info.SteamID != "" {
				summary["steam_id"] = info.SteamID
			}
			if !info.ExpiresAt.IsZero() {
				summary["expires_at"] = info.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
			}
		}

		if useYAML {
			yamlOut(summary)
		} else {
			fmt.Println("Pairing complete.")
			if steamID, ok := summary["steam_id"]; ok {
				fmt.Printf("Steam account: %s\n", steamID)
			}
			fmt.Printf("Auth token saved to %s\n", store.Path())
		}
		return nil
	},
}

func init() {
	pairOpenCmd.Flags().String("host", "127.0.0.1", "Interface the local pairing server binds to")
	pairOpenCmd.Flags().Bool("no-launch", false, "Do not try to open a browser")
	pairOpenCmd.Flags().String("url", "", "Override the companion login URL")
	rootCmd.AddCommand(pairOpenCmd)
}
