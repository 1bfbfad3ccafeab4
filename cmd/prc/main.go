// Command prc is the CLI client for the procure service.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/client"
)

var (
	serverURL  string
	authToken  string
	accountID  string
	jsonOutput bool

	api client.ProcureClient
)

func defaultServerURL() string {
	if s := os.Getenv("PROCURE_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("PROCURE_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

func defaultAccount() string {
	if s := os.Getenv("PROCURE_ACCOUNT"); s != "" {
		return s
	}
	return activeRemoteAccount()
}

var rootCmd = &cobra.Command{
	Use:   "prc <command>",
	Short: "CLI client for the procure service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		api = client.NewHTTPClient(serverURL, authToken, accountID)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if api != nil {
			api.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVar(&accountID, "account", defaultAccount(), "account id")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "resources", Title: "Resources:"},
		&cobra.Group{ID: "schema", Title: "Schema:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Resources
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(costCmd)
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(uploadCmd)

	// Schema
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(fieldCmd)
	rootCmd.AddCommand(provisionCmd)

	// System
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
