package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Start calls with online users",
}

var offerFile string

var initiateCallCmd = &cobra.Command{
	Use:   "initiate <user-id>",
	Short: "Send an SDP offer to a connected user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offer := json.RawMessage(`{"type":"offer"}`)
		if offerFile != "" {
			raw, err := os.ReadFile(offerFile)
			if err != nil {
				return fmt.Errorf("failed to read offer: %w", err)
			}
			if !json.Valid(raw) {
				return fmt.Errorf("offer file is not valid JSON")
			}
			offer = raw
		}

		payload := map[string]interface{}{"to": args[0], "offer": offer}
		if err := doRequest(cmd.Context(), http.MethodPost, "/api/v1/calls/initiate", payload, nil); err != nil {
			return err
		}
		fmt.Println("✓ Call initiated")
		return nil
	},
}

func init() {
	initiateCallCmd.Flags().StringVar(&offerFile, "offer", "", "Path to a JSON SDP offer")
	callCmd.AddCommand(initiateCallCmd)
}
