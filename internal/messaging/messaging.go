// Package messaging sends direct and community chat messages.
//
// A message is stored, pushed to whoever is connected, and announced with a
// notification through the fan-out engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/websocket"
	"go.uber.org/zap"
)

var (
	ErrInvalid   = errors.New("invalid message")
	ErrNotMember = errors.New("sender is not a member of this community")
)

// Media is an already-uploaded attachment
type Media struct {
	URL  string
	Type string // "photo" or "video"
}

// Publisher pushes to single connections and community rooms
type Publisher interface {
	Publish(handleID, event string, payload interface{}) bool
	PublishToRoom(roomID, event string, payload interface{}) int
}

// Directory resolves display names and community membership
type Directory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetCommunity(ctx context.Context, communityID string) (*models.Community, error)
	MemberIDs(ctx context.Context, communityID string) ([]string, error)
}

type Service struct {
	messages  repository.MessageStore
	directory Directory
	engine    *fanout.Engine
	policy    fanout.Policy
	registry  presence.Registry
	publisher Publisher
}

func NewService(
	messages repository.MessageStore,
	directory Directory,
	engine *fanout.Engine,
	policy fanout.Policy,
	registry presence.Registry,
	publisher Publisher,
) *Service {
	if policy == nil {
		policy = fanout.AllowAll{}
	}
	return &Service{
		messages:  messages,
		directory: directory,
		engine:    engine,
		policy:    policy,
		registry:  registry,
		publisher: publisher,
	}
}

// SendDirect stores a message, pushes it to the receiver if connected and
// leaves the receiver a notification. fanout.ErrBlocked is returned when
// either user has blocked the other.
func (s *Service) SendDirect(ctx context.Context, senderID, receiverID, content string, media *Media) (*models.Message, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return nil, fmt.Errorf("%w: receiver is required", ErrInvalid)
	}
	if receiverID == senderID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalid)
	}

	msg := newMessage(senderID, receiverID, models.MessageDirect, content, media)
	if !msg.HasBody() {
		return nil, fmt.Errorf("%w: content or media is required", ErrInvalid)
	}

	allowed, err := s.policy.Allowed(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("check policy: %w", err)
	}
	if !allowed {
		return nil, fanout.ErrBlocked
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.Get().MessagesSentTotal.WithLabelValues(string(models.MessageDirect)).Inc()

	if handle, ok := s.registry.Lookup(ctx, receiverID); ok {
		s.publisher.Publish(handle, websocket.EventMessageReceive, msg)
	}

	text := fmt.Sprintf("%s sent you a message: \"%s\"", s.displayName(ctx, senderID), msg.Content)
	if _, err := s.engine.NotifyUser(ctx, fanout.FromUser(senderID), receiverID, text); err != nil {
		// the message itself is stored; a missing notification is logged only
		logger.Log.Warn("Failed to notify message receiver",
			logger.WithUserID(receiverID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	return msg, nil
}

// SendCommunity stores one group message, pushes it to the community room and
// notifies every other member.
func (s *Service) SendCommunity(ctx context.Context, senderID, communityID, content string, media *Media) (*models.Message, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("%w: community is required", ErrInvalid)
	}
	msg := newMessage(senderID, communityID, models.MessageGroup, content, media)
	if !msg.HasBody() {
		return nil, fmt.Errorf("%w: content or media is required", ErrInvalid)
	}

	community, err := s.directory.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("load community: %w", err)
	}
	members, err := s.directory.MemberIDs(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("load community members: %w", err)
	}
	if !contains(members, senderID) {
		return nil, ErrNotMember
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.Get().MessagesSentTotal.WithLabelValues(string(models.MessageGroup)).Inc()

	s.publisher.PublishToRoom(communityID, websocket.EventCommunityMessage, msg)

	text := fmt.Sprintf("%s sent a message in the community \"%s\" - %s", s.displayName(ctx, senderID), community.Name, msg.Content)
	if _, err := s.engine.NotifyMany(ctx, senderID, members, text); err != nil {
		logger.Log.Warn("Failed to notify community members",
			zap.String("community_id", communityID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	return msg, nil
}

// Conversation returns the direct messages between two users, oldest first
func (s *Service) Conversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	if strings.TrimSpace(userB) == "" {
		return nil, fmt.Errorf("%w: receiver is required", ErrInvalid)
	}
	return s.messages.Conversation(ctx, userA, userB)
}

// GroupConversation returns a community's messages, oldest first. Only members
// may read them.
func (s *Service) GroupConversation(ctx context.Context, userID, communityID string) ([]*models.Message, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("%w: community is required", ErrInvalid)
	}
	if err := s.requireMember(ctx, userID, communityID); err != nil {
		return nil, err
	}
	return s.messages.GroupConversation(ctx, communityID)
}

// MarkRead flips a message's read flag for its reader: the receiver of a
// direct message or a member of the message's community. A direct message
// addressed to someone else reads as repository.ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Type == models.MessageGroup {
		if err := s.requireMember(ctx, userID, msg.ReceiverID); err != nil {
			return nil, err
		}
	} else if msg.ReceiverID != userID {
		return nil, repository.ErrNotFound
	}
	return s.messages.MarkRead(ctx, messageID)
}

func (s *Service) requireMember(ctx context.Context, userID, communityID string) error {
	if _, err := s.directory.GetCommunity(ctx, communityID); err != nil {
		return fmt.Errorf("load community: %w", err)
	}
	members, err := s.directory.MemberIDs(ctx, communityID)
	if err != nil {
		return fmt.Errorf("load community members: %w", err)
	}
	if !contains(members, userID) {
		return ErrNotMember
	}
	return nil
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return "Someone"
	}
	if user.Name != "" {
		return user.Name
	}
	if user.Username != "" {
		return user.Username
	}
	return "Someone"
}

func newMessage(senderID, receiverID string, kind models.MessageType, content string, media *Media) *models.Message {
	msg := models.NewMessage(senderID, receiverID, kind, strings.TrimSpace(content))
	if media != nil {
		msg.MediaURL = media.URL
		msg.MediaType = media.Type
	}
	return msg
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
