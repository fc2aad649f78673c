// Package cmd implements the flowdeck-admin CLI commands.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagAPIKey  string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "flowdeck-admin",
	Short: "Flowdeck platform administration CLI",
	Long: `flowdeck-admin is a kubectl-style CLI for operating a Flowdeck deployment.

It provides commands to inspect workflows and executions, trigger runs,
manage API keys and environment variables, and check platform health.

Use "flowdeck-admin config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: FLOWDECK_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Override API key (env: FLOWDECK_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(undeployCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
}

// initConfig resolves the connection settings. Precedence: flags, then
// environment, then the current context of ~/.flowdeck/config.yaml.
func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("FLOWDECK_API_URL")
	}
	if flagAPIKey == "" {
		flagAPIKey = os.Getenv("FLOWDECK_API_KEY")
	}
	if flagAPIURL == "" || flagAPIKey == "" {
		u, k := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagAPIKey == "" {
			flagAPIKey = k
		}
	}
	if flagAPIURL == "" {
		flagAPIURL = "http://localhost:8080"
	}
}

func apiClient() *Client {
	return NewClient(flagAPIURL, flagAPIKey, flagVerbose)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("flowdeck-admin %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API health and readiness",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := apiClient()

		var health map[string]any
		data, err := client.Get("/health")
		if err != nil {
			return err
		}
		if err := unmarshal(data, &health); err != nil {
			return err
		}

		var ready map[string]any
		if data, err = client.Get("/ready"); err == nil {
			_ = unmarshal(data, &ready)
		}

		printOutput(map[string]any{"health": health, "ready": ready}, func() {
			t := newTable("CHECK", "STATUS")
			t.AddRow("health", str(health["status"]))
			t.AddRow("ready", str(ready["status"]))
			t.Flush()
		})
		return nil
	},
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
