package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

// PresenceTracker is the gateway side of presence: it remembers the state and tells subscribers.
type PresenceTracker interface {
	SetPresence(ctx context.Context, userID int64, online bool, at time.Time)
}

type PresenceService struct {
	store   repository.Store
	tracker PresenceTracker
}

func NewPresenceService(store repository.Store, tracker PresenceTracker) *PresenceService {
	return &PresenceService{store: store, tracker: tracker}
}

// ParsePresenceAction accepts "online" and "offline".
func ParsePresenceAction(action string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case events.StatusOnline:
		return true, nil
	case events.StatusOffline:
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown presence action %q", parley_errors.ErrInvalidInput, action)
}

// Signal records an explicit online/offline signal. Going offline stamps users.last_online.
func (s *PresenceService) Signal(ctx context.Context, userID int64, online bool) error {
	now := time.Now().UTC()
	if !online {
		if err := s.store.Repos().Users.UpdateLastOnline(ctx, userID, now); err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
	}
	if s.tracker != nil {
		s.tracker.SetPresence(ctx, userID, online, now)
	}
	return nil
}
