package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	useYAML    bool
)

// defaultConfigFile resolves the config path: flag default, overridable via
// RUSTPLUS_CONFIG_FILE (optionally from a .env in the working directory).
func defaultConfigFile() string {
	return "rustplus.config.json"
}

var rootCmd = &cobra.Command{
	Use:   "rustplus-companion",
	Short: "Register for Rust+ push notifications and pair with your account",
	Long: `rustplus-companion performs the Rust+ companion registration handshake:
it impersonates an Android device to obtain push credentials, bridges them to
an Expo push token, pairs with your Steam account through the Facepunch
companion site, and stores the resulting credentials in a local config file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", defaultConfigFile(), "Path of the JSON config file credentials are merged into")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format")

	// A .env in the working directory may carry overrides; absence is fine.
	_ = godotenv.Load()
	if envPath := os.Getenv("RUSTPLUS_CONFIG_FILE"); envPath != "" {
		configFile = envPath
	}
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
