package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lodgebook/internal/domain"
)

// memStore is an in-memory stand-in for the MySQL repository. It honors the
// same contracts: claims snapshots filter expired holds, and
// CreateReservation re-checks overlap under a lock so concurrent commits on
// the same dates admit exactly one winner.
type memStore struct {
	mu           sync.Mutex
	properties   map[int64]domain.Property
	rooms        map[int64][]domain.Room
	reservations []domain.Reservation
	holds        []domain.Hold
	nextID       int64

	// beforeCommit, when set, runs inside CreateReservation after the
	// overlap re-check gate is entered. Used to widen race windows.
	beforeCommit func()
}

func newMemStore() *memStore {
	return &memStore{
		properties: map[int64]domain.Property{},
		rooms:      map[int64][]domain.Room{},
	}
}

func (m *memStore) addProperty(p domain.Property, rooms ...domain.Room) {
	m.properties[p.ID] = p
	m.rooms[p.ID] = rooms
}

// ---- InventoryRepository ----

func (m *memStore) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok || !p.Active {
		return domain.Property{}, fmt.Errorf("%w: property %d", domain.ErrNotFound, id)
	}
	return p, nil
}

func (m *memStore) ListRooms(ctx context.Context, propertyID int64) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Room, len(m.rooms[propertyID]))
	copy(out, m.rooms[propertyID])
	return out, nil
}

func (m *memStore) GetRooms(ctx context.Context, propertyID int64, ids []int64) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := map[int64]domain.Room{}
	for _, r := range m.rooms[propertyID] {
		byID[r.ID] = r
	}
	out := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || !r.Active {
			return nil, fmt.Errorf("%w: room %d does not belong to property %d", domain.ErrValidation, id, propertyID)
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListPropertyIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.properties))
	for id := range m.properties {
		out = append(out, id)
	}
	return out, nil
}

// ---- ReservationRepository ----

func (m *memStore) claimsLocked(propertyID int64, start, end, now time.Time) []domain.Claim {
	var out []domain.Claim
	for _, r := range m.reservations {
		if r.PropertyID != propertyID {
			continue
		}
		if r.Status != domain.StatusPending && r.Status != domain.StatusConfirmed {
			continue
		}
		if !domain.Overlaps(r.Start, r.End, start, end) {
			continue
		}
		out = append(out, domain.Claim{
			Whole:   r.Kind == domain.KindWholeProperty,
			RoomIDs: r.RoomIDs,
			Start:   r.Start,
			End:     r.End,
		})
	}
	for _, h := range m.holds {
		if h.PropertyID != propertyID || !h.ExpiresAt.After(now) {
			continue
		}
		if !domain.Overlaps(h.Start, h.End, start, end) {
			continue
		}
		c := domain.Claim{Session: h.SessionID, Start: h.Start, End: h.End}
		if h.RoomID == nil {
			c.Whole = true
		} else {
			c.RoomIDs = []int64{*h.RoomID}
		}
		out = append(out, c)
	}
	return out
}

func (m *memStore) OverlappingClaims(ctx context.Context, propertyID int64, start, end, now time.Time) ([]domain.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimsLocked(propertyID, start, end, now), nil
}

func (m *memStore) CreateReservation(ctx context.Context, r *domain.Reservation, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeCommit != nil {
		m.beforeCommit()
	}
	claims := m.claimsLocked(r.PropertyID, r.Start, r.End, time.Now().UTC())
	if domain.ClaimsBlock(claims, r.Kind, r.RoomIDs, sessionID) {
		return fmt.Errorf("%w: dates already taken", domain.ErrConflict)
	}
	m.nextID++
	r.ID = m.nextID
	m.reservations = append(m.reservations, *r)
	return nil
}

func (m *memStore) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Reservation{}, fmt.Errorf("%w: reservation %d", domain.ErrNotFound, id)
}

func (m *memStore) ListByProperty(ctx context.Context, propertyID int64) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.PropertyID == propertyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SetStatus(ctx context.Context, id int64, to domain.Status, reason string, from ...domain.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reservations {
		if r.ID != id {
			continue
		}
		for _, f := range from {
			if r.Status == f {
				m.reservations[i].Status = to
				if reason != "" {
					m.reservations[i].CancelReason = reason
				}
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (m *memStore) CompleteElapsed(ctx context.Context, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, r := range m.reservations {
		if r.Status == domain.StatusConfirmed && !r.End.After(today) {
			m.reservations[i].Status = domain.StatusCompleted
			n++
		}
	}
	return n, nil
}

// ---- HoldRepository ----

func (m *memStore) InsertHold(ctx context.Context, h domain.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds = append(m.holds, h)
	return nil
}

func (m *memStore) RenewHold(ctx context.Context, id string, until, now time.Time) (domain.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.holds {
		if h.ID != id {
			continue
		}
		if !h.ExpiresAt.After(now) {
			return domain.Hold{}, fmt.Errorf("%w: hold %s", domain.ErrExpired, id)
		}
		m.holds[i].ExpiresAt = until
		return m.holds[i], nil
	}
	return domain.Hold{}, fmt.Errorf("%w: hold %s", domain.ErrNotFound, id)
}

func (m *memStore) DeleteHold(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.holds {
		if h.ID == id {
			m.holds = append(m.holds[:i], m.holds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) DeleteSessionHolds(ctx context.Context, sessionID string, propertyID int64, roomIDs []int64, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	covered := func(h domain.Hold) bool {
		if len(roomIDs) == 0 || h.RoomID == nil {
			return true
		}
		for _, id := range roomIDs {
			if *h.RoomID == id {
				return true
			}
		}
		return false
	}
	var kept []domain.Hold
	var n int64
	for _, h := range m.holds {
		if h.SessionID == sessionID && h.PropertyID == propertyID &&
			domain.Overlaps(h.Start, h.End, start, end) && covered(h) {
			n++
			continue
		}
		kept = append(kept, h)
	}
	m.holds = kept
	return n, nil
}

func (m *memStore) PurgeExpired(ctx context.Context, propertyID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Hold
	var n int64
	for _, h := range m.holds {
		if h.PropertyID == propertyID && !h.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, h)
	}
	m.holds = kept
	return n, nil
}

// ---- EventPublisher ----

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.ReservationCreatedEvent
	err    error
}

func (p *fakePublisher) PublishReservationCreated(ctx context.Context, ev domain.ReservationCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// ---- helpers ----

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func seedStore() *memStore {
	st := newMemStore()
	st.addProperty(
		domain.Property{ID: 1, Name: "Villa Inmarcesible", Slug: "villa-inmarcesible", Capacity: 8, NightlyCents: 198000, Active: true},
		domain.Room{ID: 11, PropertyID: 1, Name: "Room A", Capacity: 2, NightlyCents: 52000, Active: true},
		domain.Room{ID: 12, PropertyID: 1, Name: "Room B", Capacity: 3, NightlyCents: 64000, Active: true},
		domain.Room{ID: 13, PropertyID: 1, Name: "Room C", Capacity: 3, NightlyCents: 70000, Active: true},
	)
	return st
}
