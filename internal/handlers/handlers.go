package handlers

import (
	"context"

	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/messaging"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/signaling"
)

// Rooms moves a user's live connection in and out of community rooms
type Rooms interface {
	JoinUserRoom(ctx context.Context, userID, roomID string) bool
	LeaveUserRoom(ctx context.Context, userID, roomID string) bool
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	engine    *fanout.Engine
	messages  *messaging.Service
	relay     *signaling.Relay
	directory repository.DirectoryRepository
	rooms     Rooms
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	engine *fanout.Engine,
	messages *messaging.Service,
	relay *signaling.Relay,
	directory repository.DirectoryRepository,
	rooms Rooms,
) *Handlers {
	return &Handlers{
		engine:    engine,
		messages:  messages,
		relay:     relay,
		directory: directory,
		rooms:     rooms,
	}
}
