package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/auth"
)

var (
	authToken string
	apiURL    string = "http://localhost:8787"
	output    string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon CLI - read notifications, send messages and place calls",
	Long: `Beacon CLI provides command-line access to the Beacon API.
Read and page through notifications, send direct messages and start calls.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("BEACON_TOKEN")
		}
		if authToken == "" && cmd.Name() != "help" && cmd.Name() != "token" && cmd.Parent() != nil {
			fmt.Fprintf(os.Stderr, "Error: BEACON_TOKEN environment variable not set\n")
			fmt.Fprintf(os.Stderr, "Please set your auth token: export BEACON_TOKEN=<your-token>\n")
			os.Exit(1)
		}
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [username]",
	Short: "Mint a development token signed with JWT_SECRET",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET environment variable not set")
		}
		username := args[0]
		if len(args) > 1 {
			username = args[1]
		}
		token, expires, err := auth.NewTokenService([]byte(secret), 24*time.Hour).Issue(args[0], username)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(map[string]interface{}{"token": token, "expires_at": expires})
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to BEACON_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	// Add command groups
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(callCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
