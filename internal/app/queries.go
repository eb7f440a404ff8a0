package app

import (
	"context"
	"fmt"
	"time"

	"lodgebook/internal/domain"
)

// QueryService serves the marketing site and the admin panel read paths.
// Property pages go through the redis cache; availability and admin listings
// always hit the store, since a stale availability answer would only be
// corrected at commit time anyway and admins expect the latest state.
type QueryService struct {
	inventory    domain.InventoryRepository
	reservations domain.ReservationRepository
	availability *AvailabilityService
	cache        domain.Cache
	cacheTTL     time.Duration
}

func NewQueryService(inv domain.InventoryRepository, res domain.ReservationRepository, avail *AvailabilityService, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{inventory: inv, reservations: res, availability: avail, cache: c, cacheTTL: ttl}
}

func propertyKey(id int64) string { return fmt.Sprintf("property:%d", id) }

// GetPropertyView returns the property plus its rooms, cached as one unit.
func (s *QueryService) GetPropertyView(ctx context.Context, id int64) (domain.PropertyView, error) {
	key := propertyKey(id)
	var pv domain.PropertyView
	if ok, _ := s.cache.Get(ctx, key, &pv); ok {
		return pv, nil
	}
	property, err := s.inventory.GetProperty(ctx, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	rooms, err := s.inventory.ListRooms(ctx, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	pv = domain.PropertyView{Property: property, Rooms: rooms}
	// copy before caching so callers mutating the result cannot poison it
	_ = s.cache.Set(ctx, key, copyView(pv), s.cacheTTL)
	return pv, nil
}

// InvalidateProperty drops the cached view, for admin edits to inventory.
func (s *QueryService) InvalidateProperty(ctx context.Context, id int64) error {
	return s.cache.Del(ctx, propertyKey(id))
}

// AvailabilityView is the answer to "what can I book here for these dates".
type AvailabilityView struct {
	WholeProperty bool
	Rooms         []domain.Room
}

// Availability reports whether the whole property can be booked for
// [start,end) and which individual rooms remain. Never cached.
func (s *QueryService) Availability(ctx context.Context, propertyID int64, start, end time.Time, session string) (AvailabilityView, error) {
	if _, err := domain.Nights(start, end); err != nil {
		return AvailabilityView{}, err
	}
	whole, err := s.availability.CanBookWhole(ctx, propertyID, start, end, session)
	if err != nil {
		return AvailabilityView{}, err
	}
	rooms, err := s.availability.AvailableRooms(ctx, propertyID, start, end, session)
	if err != nil {
		return AvailabilityView{}, err
	}
	return AvailabilityView{WholeProperty: whole, Rooms: rooms}, nil
}

// ListReservations is the admin panel listing, newest first.
func (s *QueryService) ListReservations(ctx context.Context, propertyID int64) ([]domain.Reservation, error) {
	return s.reservations.ListByProperty(ctx, propertyID)
}

func copyView(in domain.PropertyView) domain.PropertyView {
	out := domain.PropertyView{Property: in.Property}
	if n := len(in.Rooms); n > 0 {
		out.Rooms = make([]domain.Room, n)
		copy(out.Rooms, in.Rooms)
	}
	return out
}
