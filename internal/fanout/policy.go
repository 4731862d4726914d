package fanout

import (
	"context"

	"github.com/zfogg/beacon/internal/repository"
)

// Policy decides whether a user may reach another user. It is consulted once
// per notify path, before anything is written.
type Policy interface {
	Allowed(ctx context.Context, fromID, toID string) (bool, error)
}

// AllowAll permits every pair
type AllowAll struct{}

func (AllowAll) Allowed(context.Context, string, string) (bool, error) {
	return true, nil
}

// BlockPolicy denies delivery when either user has blocked the other
type BlockPolicy struct {
	directory repository.DirectoryRepository
}

// NewBlockPolicy creates a policy backed by the block list
func NewBlockPolicy(directory repository.DirectoryRepository) *BlockPolicy {
	return &BlockPolicy{directory: directory}
}

func (p *BlockPolicy) Allowed(ctx context.Context, fromID, toID string) (bool, error) {
	blocked, err := p.directory.IsBlocked(ctx, fromID, toID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
