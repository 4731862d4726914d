package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/repository"
)

// connectTestStore uses a throwaway database on MONGO_TEST_URI and skips when
// no server is reachable
func connectTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := Connect(ctx, uri, "beacon_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.db.Drop(context.Background())
		_ = store.Close(context.Background())
	})
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func TestNotificationStore(t *testing.T) {
	store := connectTestStore(t)
	notifications := store.Notifications()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 1; i <= 12; i++ {
		n := models.NewNotification(nil, nil, "bob", fmt.Sprintf("n%d", i))
		n.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, notifications.Create(ctx, n))
	}

	page, err := notifications.Page(ctx, "bob", 10, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "n2", page[0].Message)

	unread, err := notifications.ListUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, unread, 12)

	require.NoError(t, notifications.MarkRead(ctx, "bob", unread[0].ID))
	assert.ErrorIs(t, notifications.MarkRead(ctx, "carol", unread[1].ID), repository.ErrNotFound)

	n, err := notifications.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	n, err = notifications.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNotificationBatchRejectsInvalid(t *testing.T) {
	store := connectTestStore(t)
	notifications := store.Notifications()
	ctx := context.Background()

	err := notifications.CreateBatch(ctx, []*models.Notification{
		models.NewNotification(nil, nil, "bob", "ok"),
		models.NewNotification(nil, nil, "", "bad"),
	})
	assert.Error(t, err)

	all, err := notifications.ListByRecipient(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMessageStore(t *testing.T) {
	store := connectTestStore(t)
	messages := store.Messages()
	ctx := context.Background()

	first := models.NewMessage("alice", "bob", models.MessageDirect, "hi")
	first.Timestamp = time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	second := models.NewMessage("bob", "alice", models.MessageDirect, "hey")
	require.NoError(t, messages.Create(ctx, second))
	require.NoError(t, messages.Create(ctx, first))

	conv, err := messages.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "hi", conv[0].Content)

	got, err := messages.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey", got.Content)
	_, err = messages.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	read, err := messages.MarkRead(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	_, err = messages.MarkRead(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
