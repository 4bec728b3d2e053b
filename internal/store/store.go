// Package store journals room metadata and the room log so rooms survive a
// server restart. Combat state is not journaled; a restored room starts out
// of combat.
package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

var (
	ErrNotFound = errors.New("store: room not found")
	ErrExists   = errors.New("store: room already journaled")
)

// Journal is the persistence the hub and rooms rely on.
type Journal interface {
	// SaveRoom records a new room. It fails with ErrExists when the code was
	// journaled before, including by an earlier process.
	SaveRoom(ctx context.Context, code string, visibility domain.Visibility) error
	AppendLog(ctx context.Context, code string, entry domain.LogEntry) error
	MarkEnded(ctx context.Context, code string) error
	LoadRoom(ctx context.Context, code string) (Restored, error)
}

// Restored is what a journal knows about a room.
type Restored struct {
	Code       string
	Visibility domain.Visibility
	Ended      bool
	Log        []domain.LogEntry
}
