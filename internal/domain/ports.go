package domain

import (
	"context"
	"time"
)

type InventoryRepository interface {
	GetProperty(ctx context.Context, id int64) (Property, error)
	ListRooms(ctx context.Context, propertyID int64) ([]Room, error)
	// GetRooms loads the given rooms of a property; a missing or foreign
	// room id yields ErrValidation.
	GetRooms(ctx context.Context, propertyID int64, ids []int64) ([]Room, error)
	ListPropertyIDs(ctx context.Context) ([]int64, error)
}

type ReservationRepository interface {
	// OverlappingClaims returns every exclusivity signal intersecting
	// [start,end) on the property in one pass: pending/confirmed
	// reservations plus holds with expires_at > now. Holds already expired
	// at read time are invisible.
	OverlappingClaims(ctx context.Context, propertyID int64, start, end, now time.Time) ([]Claim, error)

	// CreateReservation commits the reservation and its room associations
	// atomically, re-checking the no-overlap invariant inside the same
	// transaction. A concurrent writer winning the race yields ErrConflict;
	// the rejection of this commit is the only authoritative conflict
	// signal. sessionID exempts the caller's own holds from the re-check.
	// Populates r.ID and r.CreatedAt on success.
	CreateReservation(ctx context.Context, r *Reservation, sessionID string) error

	GetReservation(ctx context.Context, id int64) (Reservation, error)
	ListByProperty(ctx context.Context, propertyID int64) ([]Reservation, error)

	// SetStatus transitions the reservation iff its current status is one
	// of from, reporting whether a row changed.
	SetStatus(ctx context.Context, id int64, to Status, reason string, from ...Status) (bool, error)

	// CompleteElapsed marks confirmed reservations whose checkout has
	// passed as completed, returning the number transitioned.
	CompleteElapsed(ctx context.Context, today time.Time) (int64, error)
}

type HoldRepository interface {
	InsertHold(ctx context.Context, h Hold) error
	// RenewHold extends the expiry of a live hold; ErrExpired when it has
	// already lapsed, ErrNotFound when it never existed or was reclaimed.
	RenewHold(ctx context.Context, id string, until, now time.Time) (Hold, error)
	// DeleteHold is idempotent: deleting an absent hold is not an error.
	DeleteHold(ctx context.Context, id string) error
	// DeleteSessionHolds removes the session's holds on a property that
	// intersect [start,end) and cover the committed selection, returning
	// how many were released. nil roomIDs means a whole-property booking:
	// every overlapping hold of the session is spent. Otherwise only
	// whole-property holds and holds on the listed rooms are spent; holds
	// on rooms outside the selection stay live.
	DeleteSessionHolds(ctx context.Context, sessionID string, propertyID int64, roomIDs []int64, start, end time.Time) (int64, error)
	PurgeExpired(ctx context.Context, propertyID int64, now time.Time) (int64, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// EventPublisher delivers reservation events at most once, best effort.
// Failures are logged by the caller and never roll back a booking.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, ev ReservationCreatedEvent) error
}
