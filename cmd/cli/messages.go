package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/models"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Send and read direct messages",
}

var (
	sendTo       string
	sendMediaURL string
)

var sendMessageCmd = &cobra.Command{
	Use:   "send <content>",
	Short: "Send a direct message",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]string{"receiver_id": sendTo, "media_url": sendMediaURL}
		if len(args) == 1 {
			payload["content"] = args[0]
		}

		var msg models.Message
		if err := doRequest(cmd.Context(), http.MethodPost, "/api/v1/messages", payload, &msg); err != nil {
			return err
		}
		if output == "json" {
			return printJSON(msg)
		}
		fmt.Printf("✓ Sent (%s)\n", msg.ID)
		return nil
	},
}

var conversationCmd = &cobra.Command{
	Use:   "conversation <user-id>",
	Short: "Show your conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Messages []*models.Message `json:"messages"`
		}
		if err := doRequest(cmd.Context(), http.MethodGet, "/api/v1/messages/conversation?receiver_id="+args[0], nil, &resp); err != nil {
			return err
		}
		if output == "json" {
			return printJSON(resp.Messages)
		}
		for _, m := range resp.Messages {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), m.SenderID, m.Content)
		}
		return nil
	},
}

func init() {
	sendMessageCmd.Flags().StringVar(&sendTo, "to", "", "Receiver user id")
	sendMessageCmd.Flags().StringVar(&sendMediaURL, "media", "", "URL of an uploaded photo or video")
	_ = sendMessageCmd.MarkFlagRequired("to")

	messagesCmd.AddCommand(sendMessageCmd)
	messagesCmd.AddCommand(conversationCmd)
}
