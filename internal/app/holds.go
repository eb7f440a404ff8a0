package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lodgebook/internal/domain"
)

// HoldService manages the short-lived exclusivity claims a browsing session
// takes while selecting dates and rooms. Holds are advisory: they shrink the
// race window but the commit transaction stays the only authority. Expiry is
// lazy: availability reads filter out lapsed holds, so no timer is needed;
// cmd/sweeper reclaims the rows eventually.
type HoldService struct {
	holds        domain.HoldRepository
	inventory    domain.InventoryRepository
	availability *AvailabilityService
	ttl          time.Duration
	now          func() time.Time
}

func NewHoldService(holds domain.HoldRepository, inv domain.InventoryRepository, avail *AvailabilityService, ttl time.Duration) *HoldService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HoldService{holds: holds, inventory: inv, availability: avail, ttl: ttl, now: time.Now}
}

// Acquire claims a room, or the whole property when roomID is nil, for
// [start,end). The caller's own prior holds never count against it. The
// target must belong to the property; a room id from another property is
// ErrValidation.
func (s *HoldService) Acquire(ctx context.Context, sessionID string, propertyID int64, roomID *int64, start, end time.Time) (domain.Hold, error) {
	if sessionID == "" {
		return domain.Hold{}, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if _, err := domain.Nights(start, end); err != nil {
		return domain.Hold{}, err
	}
	if roomID == nil {
		if _, err := s.inventory.GetProperty(ctx, propertyID); err != nil {
			return domain.Hold{}, err
		}
	} else {
		if _, err := s.inventory.GetRooms(ctx, propertyID, []int64{*roomID}); err != nil {
			return domain.Hold{}, err
		}
	}

	var free bool
	var err error
	if roomID == nil {
		free, err = s.availability.IsPropertyFreeForWhole(ctx, propertyID, start, end, sessionID)
	} else {
		free, err = s.availability.IsRoomFree(ctx, propertyID, *roomID, start, end, sessionID)
	}
	if err != nil {
		return domain.Hold{}, err
	}
	if !free {
		return domain.Hold{}, fmt.Errorf("%w: target is already claimed", domain.ErrConflict)
	}

	h := domain.Hold{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		PropertyID: propertyID,
		RoomID:     roomID,
		Start:      start,
		End:        end,
		ExpiresAt:  s.now().UTC().Add(s.ttl),
	}
	if err := s.holds.InsertHold(ctx, h); err != nil {
		return domain.Hold{}, err
	}
	return h, nil
}

// Renew pushes the expiry of a still-live hold out by the TTL.
func (s *HoldService) Renew(ctx context.Context, holdID string) (domain.Hold, error) {
	now := s.now().UTC()
	return s.holds.RenewHold(ctx, holdID, now.Add(s.ttl), now)
}

// Release drops a hold. Releasing an absent or expired hold is a no-op.
func (s *HoldService) Release(ctx context.Context, holdID string) error {
	return s.holds.DeleteHold(ctx, holdID)
}
