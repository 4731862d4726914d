// Package beacon is the Beacon realtime server.
//
// Beacon stores notifications and messages durably and pushes them to users
// who are connected over a websocket. The code is organized into subpackages:
//
//   - internal/presence: which connection handle each online user owns
//   - internal/repository: SQL (gorm) and MongoDB stores
//   - internal/fanout: persist-then-push notification delivery
//   - internal/pagination: per-user notification page cursors
//   - internal/messaging: direct and community messages
//   - internal/signaling: call signal relay between connected users
//   - internal/websocket: the realtime transport
//   - internal/handlers: HTTP API
//
// Binaries live under cmd/: server, migrate, seed and the cli client.
package beacon
