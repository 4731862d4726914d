package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestNotificationValidate(t *testing.T) {
	ok := NewNotification(strPtr("alice"), nil, "bob", "liked your post")
	assert.NoError(t, ok.Validate())
	assert.NotEmpty(t, ok.ID)
	assert.False(t, ok.CreatedAt.IsZero())
	assert.False(t, ok.IsRead)

	system := NewNotification(nil, strPtr(SystemSender), "bob", "balance updated")
	assert.NoError(t, system.Validate())

	anonymous := NewNotification(nil, nil, "bob", "hello")
	assert.NoError(t, anonymous.Validate())

	both := NewNotification(strPtr("alice"), strPtr(SystemSender), "bob", "x")
	assert.ErrorIs(t, both.Validate(), ErrNotificationSenders)

	noTo := NewNotification(nil, nil, " ", "x")
	assert.ErrorIs(t, noTo.Validate(), ErrNotificationRecipient)

	noMsg := NewNotification(nil, nil, "bob", "  ")
	assert.ErrorIs(t, noMsg.Validate(), ErrNotificationMessage)
}

func TestMessageHasBody(t *testing.T) {
	m := NewMessage("a", "b", MessageDirect, "")
	assert.False(t, m.HasBody())

	m.MediaURL = "https://cdn.example/photo.jpg"
	assert.True(t, m.HasBody())

	assert.True(t, NewMessage("a", "b", MessageDirect, "hi").HasBody())
	assert.Equal(t, MessageDirect, m.Type)
}
