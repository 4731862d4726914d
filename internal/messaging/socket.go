package messaging

import (
	"errors"

	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/websocket"
)

type sendPayload struct {
	To          string `json:"to"`
	CommunityID string `json:"community_id"`
	// older clients send camelCase
	CommunityIDCamel string `json:"communityId"`
	Msg              string `json:"msg"`
}

func (p sendPayload) community() string {
	if p.CommunityID != "" {
		return p.CommunityID
	}
	return p.CommunityIDCamel
}

// RegisterHandlers wires send-msg and send-community-message into the hub.
// Both go through the same persist-then-push path as the HTTP endpoints.
func (s *Service) RegisterHandlers(hub *websocket.Hub) {
	hub.RegisterHandler(websocket.EventSendMessage, s.handleSendDirect)
	hub.RegisterHandler(websocket.EventSendCommunity, s.handleSendCommunity)
}

func (s *Service) handleSendDirect(client *websocket.Client, msg *websocket.Message) error {
	from, ok := client.RequireUser(msg)
	if !ok {
		return nil
	}
	var p sendPayload
	if err := msg.ParsePayload(&p); err != nil {
		client.SendReplyError(msg, "invalid_payload", "malformed send-msg payload")
		return nil
	}

	sent, err := s.SendDirect(client.Context(), from, p.To, p.Msg, nil)
	if err != nil {
		return replyError(client, msg, err)
	}
	return client.Send(websocket.NewReply(msg, websocket.MessageTypeSystem, websocket.SystemPayload{
		Event: "message_sent",
		Data:  map[string]interface{}{"id": sent.ID},
	}))
}

func (s *Service) handleSendCommunity(client *websocket.Client, msg *websocket.Message) error {
	from, ok := client.RequireUser(msg)
	if !ok {
		return nil
	}
	var p sendPayload
	if err := msg.ParsePayload(&p); err != nil {
		client.SendReplyError(msg, "invalid_payload", "malformed send-community-message payload")
		return nil
	}

	sent, err := s.SendCommunity(client.Context(), from, p.community(), p.Msg, nil)
	if err != nil {
		return replyError(client, msg, err)
	}
	return client.Send(websocket.NewReply(msg, websocket.MessageTypeSystem, websocket.SystemPayload{
		Event: "message_sent",
		Data:  map[string]interface{}{"id": sent.ID},
	}))
}

// replyError reports expected failures to the sender; anything else goes
// back to the hub as a handler error
func replyError(client *websocket.Client, msg *websocket.Message, err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		client.SendReplyError(msg, "invalid_payload", err.Error())
	case errors.Is(err, fanout.ErrBlocked), errors.Is(err, ErrNotMember):
		client.SendReplyError(msg, "forbidden", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		client.SendReplyError(msg, "not_found", err.Error())
	default:
		return err
	}
	return nil
}
