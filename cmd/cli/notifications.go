package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/models"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "Read and manage your notifications",
}

var listNotificationsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Notifications []*models.Notification `json:"notifications"`
		}
		if err := doRequest(cmd.Context(), http.MethodGet, "/api/v1/notifications", nil, &resp); err != nil {
			return err
		}
		return printNotifications(resp.Notifications)
	},
}

var unreadNotificationsCmd = &cobra.Command{
	Use:   "unread",
	Short: "List unread notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Notifications []*models.Notification `json:"notifications"`
		}
		if err := doRequest(cmd.Context(), http.MethodGet, "/api/v1/notifications/unread", nil, &resp); err != nil {
			return err
		}
		return printNotifications(resp.Notifications)
	},
}

var pageReset bool

var pageNotificationsCmd = &cobra.Command{
	Use:   "page",
	Short: "Load the next page of notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/notifications/page"
		if pageReset {
			path += "?reset=true"
		}
		var resp struct {
			Notifications []*models.Notification `json:"notifications"`
			Exhausted     bool                   `json:"exhausted"`
			Skip          int                    `json:"skip"`
		}
		if err := doRequest(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if output == "json" {
			return printJSON(resp)
		}
		if resp.Exhausted {
			fmt.Println("No more notifications. The next page starts from the newest again.")
			return nil
		}
		if err := printNotifications(resp.Notifications); err != nil {
			return err
		}
		fmt.Printf("(%d loaded)\n", resp.Skip)
		return nil
	},
}

var readNotificationsCmd = &cobra.Command{
	Use:   "read [notification-id]",
	Short: "Mark one notification, or all of them, as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if err := doRequest(cmd.Context(), http.MethodPut, "/api/v1/notifications/"+args[0]+"/read", nil, nil); err != nil {
				return err
			}
			fmt.Println("✓ Marked as read")
			return nil
		}

		var resp struct {
			Updated int64 `json:"updated"`
		}
		if err := doRequest(cmd.Context(), http.MethodPost, "/api/v1/notifications/read", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("✓ Marked %d notifications as read\n", resp.Updated)
		return nil
	},
}

func init() {
	pageNotificationsCmd.Flags().BoolVar(&pageReset, "reset", false, "Start again from the newest notification")

	notificationsCmd.AddCommand(listNotificationsCmd)
	notificationsCmd.AddCommand(unreadNotificationsCmd)
	notificationsCmd.AddCommand(pageNotificationsCmd)
	notificationsCmd.AddCommand(readNotificationsCmd)
}

func printNotifications(notifications []*models.Notification) error {
	if output == "json" {
		return printJSON(notifications)
	}
	if len(notifications) == 0 {
		fmt.Println("No notifications")
		return nil
	}
	for _, n := range notifications {
		marker := "●"
		if n.IsRead {
			marker = " "
		}
		fmt.Printf("%s %s  %s  (%s)\n", marker, n.CreatedAt.Local().Format(time.DateTime), n.Message, n.ID)
	}
	return nil
}
