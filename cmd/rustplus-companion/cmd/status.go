package cmd

import (
	"fmt"

	companion "github.com/moss-dev/rustplus-companion"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := companion.NewStore(configFile, nil)
		bundle, err := store.Load()
		if err != nil {
			return err
		}

		row := map[string]any{
			"config_file": store.Path(),
			"registered":  bundle.FCMCredentials != nil,
			"paired":      bundle.RustPlusAuthToken != "",
		}
		if bundle.FCMCredentials != nil {
			row["android_id"] = bundle.FCMCredentials.GCM.AndroidID
		}
		if bundle.RustPlusAuthToken != "" {
			if info, err := companion.InspectAuthToken(bundle.RustPlusAuthToken); err == nil {
				if info.SteamID != "" {
					row["steam_id"] = info.SteamID
				}
				if !info.ExpiresAt.IsZero() {
					row["auth_token_expires"] = info.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
				}
			}
		}
		if n := len(bundle.FCMPersistentIDs); n > 0 {
			row["processed_notifications"] = n
		}

		if useYAML {
			yamlOut(row)
			return nil
		}

		fmt.Printf("Config file: %s\n", row["config_file"])
		fmt.Printf("Registered:  %v\n", row["registered"])
		fmt.Printf("Paired:      %v\n", row["paired"])
		if v, ok := row["steam_id"]; ok {
			fmt.Printf("Steam ID:    %v\n", v)
		}
		if v, ok := row["auth_token_expires"]; ok {
			fmt.Printf("Token valid until: %v\n", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
