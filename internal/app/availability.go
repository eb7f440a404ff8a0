package app

import (
	"context"
	"time"

	"lodgebook/internal/domain"
)

// AvailabilityService answers "is this resource free for [start,end)?"
// against a single snapshot of overlapping claims per check, so each answer
// costs one read regardless of how many rooms are inspected. Answers reflect
// committed state at read time; staleness is expected and corrected by the
// re-check inside the commit transaction.
type AvailabilityService struct {
	inventory    domain.InventoryRepository
	reservations domain.ReservationRepository
	now          func() time.Time
}

func NewAvailabilityService(inv domain.InventoryRepository, res domain.ReservationRepository) *AvailabilityService {
	return &AvailabilityService{inventory: inv, reservations: res, now: time.Now}
}

func (s *AvailabilityService) claims(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.Claim, error) {
	return s.reservations.OverlappingClaims(ctx, propertyID, start, end, s.now().UTC())
}

// IsRoomFree reports whether no active reservation references the room, no
// whole-property reservation covers it, and no other session's live hold
// claims it over [start,end). excludeSession ignores the caller's own holds.
func (s *AvailabilityService) IsRoomFree(ctx context.Context, propertyID, roomID int64, start, end time.Time, excludeSession string) (bool, error) {
	cs, err := s.claims(ctx, propertyID, start, end)
	if err != nil {
		return false, err
	}
	return roomFree(cs, roomID, excludeSession), nil
}

// IsPropertyFreeForWhole reports whether nothing overlaps [start,end) on the
// property: no reservation of either kind and no other session's hold.
func (s *AvailabilityService) IsPropertyFreeForWhole(ctx context.Context, propertyID int64, start, end time.Time, excludeSession string) (bool, error) {
	cs, err := s.claims(ctx, propertyID, start, end)
	if err != nil {
		return false, err
	}
	return wholeFree(cs, excludeSession), nil
}

// AvailableRooms returns the active rooms of the property still bookable for
// [start,end). A whole-property claim empties the result: it blocks every
// room.
func (s *AvailabilityService) AvailableRooms(ctx context.Context, propertyID int64, start, end time.Time, excludeSession string) ([]domain.Room, error) {
	rooms, err := s.inventory.ListRooms(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	cs, err := s.claims(ctx, propertyID, start, end)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		if c.Whole && c.BlocksWhole(excludeSession) {
			return []domain.Room{}, nil
		}
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if !r.Active {
			continue
		}
		if roomFree(cs, r.ID, excludeSession) {
			out = append(out, r)
		}
	}
	return out, nil
}

// CanBookWhole is the whole-property face of the resolver.
func (s *AvailabilityService) CanBookWhole(ctx context.Context, propertyID int64, start, end time.Time, excludeSession string) (bool, error) {
	return s.IsPropertyFreeForWhole(ctx, propertyID, start, end, excludeSession)
}

// IsShapeFree answers for a whole booking shape (whole property or a room
// set) against one snapshot, so a multi-room request costs a single read.
func (s *AvailabilityService) IsShapeFree(ctx context.Context, propertyID int64, kind domain.Kind, roomIDs []int64, start, end time.Time, excludeSession string) (bool, error) {
	cs, err := s.claims(ctx, propertyID, start, end)
	if err != nil {
		return false, err
	}
	return !domain.ClaimsBlock(cs, kind, roomIDs, excludeSession), nil
}

// The claim slice already contains only claims overlapping the probed range,
// so the pure predicates below need no date arithmetic.

func roomFree(claims []domain.Claim, roomID int64, exceptSession string) bool {
	return !domain.ClaimsBlock(claims, domain.KindRooms, []int64{roomID}, exceptSession)
}

func wholeFree(claims []domain.Claim, exceptSession string) bool {
	return !domain.ClaimsBlock(claims, domain.KindWholeProperty, nil, exceptSession)
}
