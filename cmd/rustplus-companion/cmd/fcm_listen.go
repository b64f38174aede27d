package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	companion "github.com/moss-dev/rustplus-companion"
	"github.com/moss-dev/rustplus-companion/fcm"
	"github.com/spf13/cobra"
)

// listenTransport is the push transport linked into this build. Left nil,
// fcm-listen explains that the transport module must be wired in; tests and
// alternative builds can set it.
var listenTransport fcm.Transport

var fcmListenCmd = &cobra.Command{
	Use:   "fcm-listen",
	Short: "Listen for pairing notifications (Ctrl+C to stop)",
	Long: `Connects the push listener with the registered device identity and prints
incoming Rust+ pairing notifications. Server details from pairing
notifications can be copied straight into other Rust+ tooling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawCreds, _ := cmd.Flags().GetString("credentials")

		store := companion.NewStore(configFile, nil)
		identity, persistentIDs, err := resolveIdentity(store, rawCreds)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		listener := fcm.NewListener(identity, persistentIDs, fcm.WithTransport(listenTransport))
		listener.OnConnected(func() {
			fmt.Fprintln(os.Stderr, "Push transport connected.")
		})
		listener.OnNotification(func(n fcm.Notification) {
			printNotification(n, useYAML)
		})
		listener.OnError(func(err error) {
			fmt.Fprintf(os.Stderr, "Listener error: %v\n", err)
		})
		listener.OnPersistentIDsChanged(func(ids []string) {
			if err := store.SavePersistentIDs(ids); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to save notification IDs: %v\n", err)
			}
		})

		fmt.Fprintln(os.Stderr, "Listening for notifications (Ctrl+C to stop) ...")
		if err := listener.Connect(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, fcm.ErrNoTransport) {
				return fmt.Errorf("%w: this build was compiled without the MCS transport module", err)
			}
			return err
		}
		fmt.Fprintln(os.Stderr, "\nShutting down ...")
		return nil
	},
}

func init() {
	fcmListenCmd.Flags().String("credentials", "", `Device credentials as "{androidId:...,securityToken:...}" (default: from config)`)
	rootCmd.AddCommand(fcmListenCmd)
}

// resolveIdentity obtains the device identity for listening. An explicit
// credentials string wins; otherwise the persisted gcm record is re-parsed
// through the credential codec so the listener never sees raw untrusted
// values.
func resolveIdentity(store *companion.Store, rawCreds string) (fcm.DeviceIdentity, []string, error) {
	if rawCreds != "" {
		identity, err := fcm.ParseDeviceIdentity(rawCreds)
		if err != nil {
			return fcm.DeviceIdentity{}, nil, err
		}
		return identity, nil, nil
	}

	raw, err := store.LoadRaw()
	if err != nil {
		return fcm.DeviceIdentity{}, nil, err
	}
	credsRaw, ok := raw["fcm_credentials"]
	if !ok {
		return fcm.DeviceIdentity{}, nil, fmt.Errorf("no fcm_credentials in %s: run 'rustplus-companion fcm-register' first", store.Path())
	}
	var creds struct {
		GCM json.RawMessage `json:"gcm"`
	}
	if err := json.Unmarshal(credsRaw, &creds); err != nil {
		return fcm.DeviceIdentity{}, nil, fmt.Errorf("parsing fcm_credentials: %w", err)
	}

	identity, err := fcm.ParseDeviceIdentity(string(creds.GCM))
	if err != nil {
		return fcm.DeviceIdentity{}, nil, err
	}

	bundle, err := store.Load()
	if err != nil {
		return fcm.DeviceIdentity{}, nil, err
	}
	return identity, bundle.FCMPersistentIDs, nil
}

// printNotification renders a notification in text or YAML form.
func printNotification(n fcm.Notification, useYAML bool) {
	if pairing, ok := n.Pairing(); ok {
		if useYAML {
			fmt.Println("---")
			yamlOut(map[string]any{
				"event":        "pairing",
				"type":         pairing.Type,
				"name":         pairing.Name,
				"ip":           pairing.IP,
				"port":         pairing.Port,
				"player_id":    pairing.PlayerID,
				"player_token": pairing.PlayerToken,
			})
			return
		}
		fmt.Printf(">> PAIRING [%s] %s %s:%s playerToken=%s\n",
			pairing.Type, pairing.Name, pairing.IP, pairing.Port, pairing.PlayerToken)
		return
	}

	if useYAML {
		fmt.Println("---")
		yamlOut(map[string]any{
			"event":   "notification",
			"channel": n.ChannelID,
			"title":   n.Title,
			"message": n.Message,
		})
		return
	}
	fmt.Printf(">> [%s] %s: %s\n", n.ChannelID, n.Title, n.Message)
}
