package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Kind is a closed tagged variant: a reservation covers either the whole
// property or a non-empty set of its rooms. Keeping the variant closed rules
// out the "kind says rooms but the room list is empty" class of bugs.
type Kind string

const (
	KindWholeProperty Kind = "whole_property"
	KindRooms         Kind = "rooms"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Reservation is the committed booking record. Stay dates are half-open:
// [Start,End), so End itself is not occupied. Reservations are never
// deleted; cancellation is a state transition.
type Reservation struct {
	ID           int64
	PropertyID   int64
	Kind         Kind
	RoomIDs      []int64 // non-empty iff Kind == KindRooms
	Start        time.Time
	End          time.Time
	Guests       int
	Contact      Contact
	Notes        string
	NightlyCents int64
	TotalCents   int64
	Status       Status
	CancelReason string
	CreatedAt    time.Time
}

// Hold is a soft, time-boxed exclusivity claim tied to a browsing session.
// It blocks other sessions until it expires or is released, never its own.
type Hold struct {
	ID         string
	SessionID  string
	PropertyID int64
	RoomID     *int64 // nil claims the whole property
	Start      time.Time
	End        time.Time
	ExpiresAt  time.Time
}

// BookingRequest is the payload submitted by the booking front end.
type BookingRequest struct {
	SessionID  string
	PropertyID int64
	Kind       Kind
	RoomIDs    []int64
	Start      time.Time
	End        time.Time
	Guests     int
	Contact    Contact
	Notes      string
}

// Validate checks request shape only; availability and capacity are checked
// later against the store. A failed Validate guarantees no side effects.
func (r BookingRequest) Validate() error {
	if r.PropertyID <= 0 {
		return fmt.Errorf("%w: property is required", ErrValidation)
	}
	if _, err := Nights(r.Start, r.End); err != nil {
		return err
	}
	switch r.Kind {
	case KindWholeProperty:
		if len(r.RoomIDs) > 0 {
			return fmt.Errorf("%w: whole-property booking must not list rooms", ErrValidation)
		}
	case KindRooms:
		if len(r.RoomIDs) == 0 {
			return fmt.Errorf("%w: room booking requires at least one room", ErrValidation)
		}
		seen := make(map[int64]struct{}, len(r.RoomIDs))
		for _, id := range r.RoomIDs {
			if id <= 0 {
				return fmt.Errorf("%w: invalid room id", ErrValidation)
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: duplicate room id %d", ErrValidation, id)
			}
			seen[id] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown booking kind %q", ErrValidation, r.Kind)
	}
	if r.Guests < 1 {
		return fmt.Errorf("%w: guest count must be at least 1", ErrValidation)
	}
	if strings.TrimSpace(r.Contact.Name) == "" {
		return fmt.Errorf("%w: contact name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(r.Contact.Email); err != nil {
		return fmt.Errorf("%w: contact email is malformed", ErrValidation)
	}
	return nil
}

// Quote is the authoritative price for a reservation shape.
type Quote struct {
	NightlyCents int64
	TotalCents   int64
	Nights       int
}

// Claim is an exclusivity signal over a property's inventory within some
// date range: an active (pending/confirmed) reservation or an unexpired
// hold. Availability computation treats both identically.
type Claim struct {
	Whole   bool
	RoomIDs []int64 // ignored when Whole
	Session string  // non-empty only for holds
	Start   time.Time
	End     time.Time
}

// BlocksRoom reports whether the claim excludes the given room for any
// session other than exceptSession.
func (c Claim) BlocksRoom(roomID int64, exceptSession string) bool {
	if c.Session != "" && c.Session == exceptSession {
		return false
	}
	if c.Whole {
		return true
	}
	for _, id := range c.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// BlocksWhole reports whether the claim excludes a whole-property booking
// for any session other than exceptSession. Any claim on the property does.
func (c Claim) BlocksWhole(exceptSession string) bool {
	return c.Session == "" || c.Session != exceptSession
}

// ClaimsBlock reports whether any claim in the overlap snapshot excludes a
// booking of the given shape for a caller identified by session. The
// availability reads and the commit-time re-check share this predicate so
// the fast path and the authoritative path can never disagree on semantics.
func ClaimsBlock(claims []Claim, kind Kind, roomIDs []int64, session string) bool {
	for _, c := range claims {
		if kind == KindWholeProperty {
			if c.BlocksWhole(session) {
				return true
			}
			continue
		}
		for _, roomID := range roomIDs {
			if c.BlocksRoom(roomID, session) {
				return true
			}
		}
	}
	return false
}

// ReservationCreatedEvent is emitted at most once per successful commit.
// It carries resolved names so consumers need not query the primary store.
type ReservationCreatedEvent struct {
	ReservationID int64     `json:"reservation_id"`
	PropertyID    int64     `json:"property_id"`
	PropertyName  string    `json:"property_name"`
	Kind          Kind      `json:"kind"`
	RoomNames     []string  `json:"rooms,omitempty"`
	Start         string    `json:"start_date"`
	End           string    `json:"end_date"`
	Guests        int       `json:"guests"`
	ContactName   string    `json:"contact_name"`
	ContactEmail  string    `json:"contact_email"`
	NightlyCents  int64     `json:"price_per_night_cents"`
	TotalCents    int64     `json:"total_cents"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
