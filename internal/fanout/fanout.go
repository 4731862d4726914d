// Package fanout persists notifications and pushes them to connected recipients.
//
// Every path writes the durable record first and only then looks up the
// recipient's live connection. A failed or skipped push never undoes the write.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/pagination"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/telemetry"
	"github.com/zfogg/beacon/internal/websocket"
	"go.uber.org/zap"
)

var (
	// ErrInvalid wraps input rejected before storage
	ErrInvalid = errors.New("invalid notification")
	// ErrBlocked is returned when the policy forbids the sender reaching the recipient
	ErrBlocked = errors.New("recipient not reachable")
)

// Publisher delivers an event to a live connection handle. It reports whether
// the event was queued; false is not an error.
type Publisher interface {
	Publish(handleID, event string, payload interface{}) bool
}

// Directory resolves recipient sets for the producer helpers
type Directory interface {
	FollowerIDs(ctx context.Context, userID string) ([]string, error)
	MemberIDs(ctx context.Context, communityID string) ([]string, error)
}

// Sender identifies who a notification is from
type Sender struct {
	UserID string
	System bool
}

// FromUser is a notification sent by a user
func FromUser(userID string) Sender { return Sender{UserID: userID} }

// FromSystem is a server-generated notification
func FromSystem() Sender { return Sender{System: true} }

// Anonymous carries neither sender field
func Anonymous() Sender { return Sender{} }

func (s Sender) kind() string {
	switch {
	case s.System:
		return "system"
	case s.UserID != "":
		return "user"
	default:
		return "none"
	}
}

func (s Sender) fields() (from, fromSystem *string) {
	if s.System {
		sys := models.SystemSender
		return nil, &sys
	}
	if s.UserID != "" {
		uid := s.UserID
		return &uid, nil
	}
	return nil, nil
}

// Result reports the outcome of a multi-recipient fan-out
type Result struct {
	Persisted []*models.Notification `json:"persisted"`
	Failed    []string               `json:"failed,omitempty"`
	Skipped   []string               `json:"skipped,omitempty"`
	Pushed    int                    `json:"pushed"`
}

// Config wires an Engine. Policy, Directory and Pages are optional.
type Config struct {
	Store     repository.NotificationStore
	Registry  presence.Registry
	Publisher Publisher
	Policy    Policy
	Directory Directory
	Pages     *pagination.Cache[*models.Notification]
}

// Engine is the single place notifications are written and pushed
type Engine struct {
	store     repository.NotificationStore
	registry  presence.Registry
	publisher Publisher
	policy    Policy
	directory Directory
	pages     *pagination.Cache[*models.Notification]
}

// New creates an engine
func New(cfg Config) *Engine {
	e := &Engine{
		store:     cfg.Store,
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		policy:    cfg.Policy,
		directory: cfg.Directory,
		pages:     cfg.Pages,
	}
	if e.policy == nil {
		e.policy = AllowAll{}
	}
	if e.pages == nil {
		e.pages = pagination.New[*models.Notification](10000, 30*time.Minute)
	}
	return e
}

// NotifyUser persists one notification and pushes it if the recipient is connected
func (e *Engine) NotifyUser(ctx context.Context, from Sender, toID, message string) (*models.Notification, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationRecipient)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationMessage)
	}

	// persist and push complete even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.TraceNotify(ctx, "notify_user", telemetry.NotifyAttrs{SenderKind: from.kind(), Recipients: 1})
	defer span.End()
	start := time.Now()
	defer observe("notify_user", start)

	if from.UserID != "" {
		allowed, err := e.policy.Allowed(ctx, from.UserID, toID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("check policy: %w", err)
		}
		if !allowed {
			metrics.Get().NotificationsSkipped.WithLabelValues("blocked").Inc()
			return nil, ErrBlocked
		}
	}

	fromUser, fromSystem := from.fields()
	n := models.NewNotification(fromUser, fromSystem, toID, message)
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := e.store.Create(ctx, n); err != nil {
		metrics.Get().NotificationsFailed.WithLabelValues("notify_user").Inc()
		telemetry.RecordError(span, err)
		logger.Log.Error("Failed to persist notification",
			logger.WithUserID(toID),
			zap.Error(err))
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	metrics.Get().NotificationsPersisted.WithLabelValues("notify_user").Inc()

	pushed := 0
	if e.push(ctx, toID, n) {
		pushed = 1
	}
	telemetry.RecordDelivery(span, 1, pushed)
	return n, nil
}

// NotifySystem sends a notification tagged from_system
func (e *Engine) NotifySystem(ctx context.Context, toID, message string) (*models.Notification, error) {
	return e.NotifyUser(ctx, FromSystem(), toID, message)
}

// NotifyMany notifies every distinct recipient except fromID.
//
// Records are inserted as one batch. If the batch fails, each record is retried
// on its own so one bad recipient does not stop the rest; failures are logged
// and reported in Result.Failed. An error is returned only when nothing could
// be written.
func (e *Engine) NotifyMany(ctx context.Context, fromID string, recipientIDs []string, message string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationMessage)
	}
	return e.notifyMany(ctx, "notify_many", fromID, recipientIDs, message)
}

func (e *Engine) notifyMany(ctx context.Context, operation, fromID string, recipientIDs []string, message string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	sender := Anonymous()
	if fromID != "" {
		sender = FromUser(fromID)
	}
	ctx, span := telemetry.TraceNotify(ctx, operation, telemetry.NotifyAttrs{SenderKind: sender.kind(), Recipients: len(recipientIDs)})
	defer span.End()
	start := time.Now()
	defer observe(operation, start)

	result := &Result{}
	fromUser, _ := sender.fields()

	seen := make(map[string]struct{}, len(recipientIDs))
	batch := make([]*models.Notification, 0, len(recipientIDs))
	for _, to := range recipientIDs {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}

		if to == fromID {
			metrics.Get().NotificationsSkipped.WithLabelValues("self").Inc()
			continue
		}
		if fromID != "" {
			allowed, err := e.policy.Allowed(ctx, fromID, to)
			if err != nil {
				logger.Log.Warn("Policy check failed, skipping recipient",
					logger.WithUserID(to),
					zap.Error(err))
				result.Skipped = append(result.Skipped, to)
				metrics.Get().NotificationsSkipped.WithLabelValues("policy_error").Inc()
				continue
			}
			if !allowed {
				result.Skipped = append(result.Skipped, to)
				metrics.Get().NotificationsSkipped.WithLabelValues("blocked").Inc()
				continue
			}
		}

		batch = append(batch, models.NewNotification(fromUser, nil, to, message))
	}

	if len(batch) == 0 {
		return result, nil
	}

	var lastErr error
	if err := e.store.CreateBatch(ctx, batch); err != nil {
		logger.Log.Warn("Batch insert failed, retrying per recipient",
			zap.String("operation", operation),
			zap.Int("recipients", len(batch)),
			zap.Error(err))

		for _, n := range batch {
			if err := e.store.Create(ctx, n); err != nil {
				lastErr = err
				result.Failed = append(result.Failed, n.ToUserID)
				metrics.Get().NotificationsFailed.WithLabelValues(operation).Inc()
				logger.Log.Error("Failed to persist notification",
					logger.WithUserID(n.ToUserID),
					zap.String("operation", operation),
					zap.Error(err))
				continue
			}
			result.Persisted = append(result.Persisted, n)
		}
	} else {
		result.Persisted = batch
	}
	metrics.Get().NotificationsPersisted.WithLabelValues(operation).Add(float64(len(result.Persisted)))

	for _, n := range result.Persisted {
		if e.push(ctx, n.ToUserID, n) {
			result.Pushed++
		}
	}

	telemetry.RecordDelivery(span, len(result.Persisted), result.Pushed)
	if len(result.Persisted) == 0 && lastErr != nil {
		telemetry.RecordError(span, lastErr)
		return result, fmt.Errorf("persist notifications: %w", lastErr)
	}
	return result, nil
}

// NotifyFollowers notifies everyone following userID
func (e *Engine) NotifyFollowers(ctx context.Context, userID, message string) (*Result, error) {
	if e.directory == nil {
		return nil, errors.New("fanout: no directory configured")
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationMessage)
	}
	followers, err := e.directory.FollowerIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load followers: %w", err)
	}
	return e.notifyMany(ctx, "notify_followers", userID, followers, message)
}

// NotifyCommunityMembers notifies every member of a community except the actor
func (e *Engine) NotifyCommunityMembers(ctx context.Context, communityID, actorID, message string) (*Result, error) {
	if e.directory == nil {
		return nil, errors.New("fanout: no directory configured")
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationMessage)
	}
	members, err := e.directory.MemberIDs(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("load community members: %w", err)
	}
	return e.notifyMany(ctx, "notify_community", actorID, members, message)
}

// NotifyOwners notifies the owners of something the actor touched
func (e *Engine) NotifyOwners(ctx context.Context, actorID string, ownerIDs []string, message string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, models.ErrNotificationMessage)
	}
	return e.notifyMany(ctx, "notify_owners", actorID, ownerIDs, message)
}

// GetUnread returns the unread set newest first. If the user is connected the
// same set is also pushed live.
func (e *Engine) GetUnread(ctx context.Context, userID string) ([]*models.Notification, error) {
	ctx, span := telemetry.TraceNotify(ctx, "get_unread", telemetry.NotifyAttrs{})
	defer span.End()
	telemetry.SetUserContext(span, userID)

	unread, err := e.store.ListUnread(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list unread: %w", err)
	}

	pushed := 0
	if len(unread) > 0 && e.push(ctx, userID, unread) {
		pushed = 1
	}
	telemetry.RecordDelivery(span, 0, pushed)
	return unread, nil
}

// ListAll returns every notification for userID newest first
func (e *Engine) ListAll(ctx context.Context, userID string) ([]*models.Notification, error) {
	return e.store.ListByRecipient(ctx, userID)
}

// MarkAllRead flips every unread notification for userID and returns how many changed
func (e *Engine) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := e.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// MarkRead flips one notification. repository.ErrNotFound is returned when it
// does not exist or belongs to someone else.
func (e *Engine) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := e.store.MarkRead(ctx, userID, notificationID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// GetPage returns the next "load more" page for userID
func (e *Engine) GetPage(ctx context.Context, userID string) (pagination.Page[*models.Notification], error) {
	ctx, span := telemetry.TracePage(ctx, userID)
	defer span.End()

	page, err := e.pages.Next(ctx, userID, func(ctx context.Context, skip, limit int) ([]*models.Notification, error) {
		return e.store.Page(ctx, userID, skip, limit)
	})
	switch {
	case err != nil:
		metrics.Get().PaginationPagesTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return page, fmt.Errorf("load page: %w", err)
	case page.Exhausted:
		metrics.Get().PaginationPagesTotal.WithLabelValues("exhausted").Inc()
	default:
		metrics.Get().PaginationPagesTotal.WithLabelValues("page").Inc()
	}
	return page, nil
}

// ResetPage drops the user's cursor so the next page starts from the newest
func (e *Engine) ResetPage(userID string) {
	e.pages.Reset(userID)
}

// push publishes payload to userID's live connection, if any
func (e *Engine) push(ctx context.Context, userID string, payload interface{}) bool {
	handle, ok := e.registry.Lookup(ctx, userID)
	if !ok {
		return false
	}
	delivered := e.publisher.Publish(handle, websocket.EventNewNotification, payload)
	if !delivered {
		logger.Log.Debug("Live push not delivered",
			logger.WithUserID(userID),
			logger.WithHandleID(handle))
	}
	return delivered
}

func observe(operation string, start time.Time) {
	metrics.Get().FanoutDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
