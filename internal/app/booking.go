package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lodgebook/internal/adapters/observability"
	"lodgebook/internal/domain"
)

// BookingService orchestrates reservation creation and the administrative
// state transitions. It is stateless; exactly-once booking under concurrency
// comes from the repository's commit transaction, never from anything held
// in memory here.
type BookingService struct {
	inventory    domain.InventoryRepository
	reservations domain.ReservationRepository
	holds        domain.HoldRepository
	availability *AvailabilityService
	events       domain.EventPublisher
	now          func() time.Time
}

func NewBookingService(
	inv domain.InventoryRepository,
	res domain.ReservationRepository,
	holds domain.HoldRepository,
	avail *AvailabilityService,
	events domain.EventPublisher,
) *BookingService {
	return &BookingService{
		inventory:    inv,
		reservations: res,
		holds:        holds,
		availability: avail,
		events:       events,
		now:          time.Now,
	}
}

// Create validates a booking request, fast-rejects on a stale availability
// view, prices the stay, and commits. The fast pre-write check and the
// atomic commit report the same ErrConflict kind; a commit-time loss is
// never retried silently because the caller's view of alternatives is stale
// by then.
func (s *BookingService) Create(ctx context.Context, req domain.BookingRequest) (domain.Reservation, error) {
	if err := req.Validate(); err != nil {
		observability.ObserveBooking("rejected_validation")
		return domain.Reservation{}, err
	}

	property, err := s.inventory.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return domain.Reservation{}, err
	}

	var rooms []domain.Room
	if req.Kind == domain.KindRooms {
		rooms, err = s.inventory.GetRooms(ctx, req.PropertyID, req.RoomIDs)
		if err != nil {
			return domain.Reservation{}, err
		}
	}

	// Fast rejection on the current view. Cheap and racy; the commit below
	// is the authority.
	free, err := s.isFree(ctx, req)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !free {
		observability.ObserveBooking("rejected_conflict")
		return domain.Reservation{}, fmt.Errorf("%w: requested dates are taken", domain.ErrConflict)
	}

	quote, err := Price(req.Kind, req.Start, req.End, property, rooms, req.Guests)
	if err != nil {
		observability.ObserveBooking("rejected_capacity")
		return domain.Reservation{}, err
	}

	res := domain.Reservation{
		PropertyID:   req.PropertyID,
		Kind:         req.Kind,
		RoomIDs:      req.RoomIDs,
		Start:        req.Start,
		End:          req.End,
		Guests:       req.Guests,
		Contact:      req.Contact,
		Notes:        req.Notes,
		NightlyCents: quote.NightlyCents,
		TotalCents:   quote.TotalCents,
		Status:       domain.StatusPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.reservations.CreateReservation(ctx, &res, req.SessionID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.ObserveBooking("rejected_conflict")
		} else {
			observability.ObserveBooking("failed")
		}
		return domain.Reservation{}, err
	}
	observability.ObserveBooking("created")

	// The selection is committed; the session's holds covering it are
	// spent. Holds on rooms outside the selection stay live.
	if req.SessionID != "" {
		if _, err := s.holds.DeleteSessionHolds(ctx, req.SessionID, req.PropertyID, req.RoomIDs, req.Start, req.End); err != nil {
			log.Warn().Err(err).Int64("reservation", res.ID).Msg("release holds after commit failed")
		}
	}

	s.publishCreated(ctx, res, property, rooms)
	return res, nil
}

// publishCreated emits the notification event, at most once, fire and
// forget. A delivery failure is logged and never surfaced to the booker.
func (s *BookingService) publishCreated(ctx context.Context, res domain.Reservation, property domain.Property, rooms []domain.Room) {
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	ev := domain.ReservationCreatedEvent{
		ReservationID: res.ID,
		PropertyID:    property.ID,
		PropertyName:  property.Name,
		Kind:          res.Kind,
		RoomNames:     names,
		Start:         res.Start.Format(domain.DateLayout),
		End:           res.End.Format(domain.DateLayout),
		Guests:        res.Guests,
		ContactName:   res.Contact.Name,
		ContactEmail:  res.Contact.Email,
		NightlyCents:  res.NightlyCents,
		TotalCents:    res.TotalCents,
		Status:        res.Status,
		CreatedAt:     res.CreatedAt,
	}
	if err := s.events.PublishReservationCreated(ctx, ev); err != nil {
		observability.ObserveEvent("reservation.created", "error")
		log.Error().Err(err).Int64("reservation", res.ID).Msg("publish reservation event failed")
		return
	}
	observability.ObserveEvent("reservation.created", "ok")
}

func (s *BookingService) isFree(ctx context.Context, req domain.BookingRequest) (bool, error) {
	return s.availability.IsShapeFree(ctx, req.PropertyID, req.Kind, req.RoomIDs, req.Start, req.End, req.SessionID)
}

// Confirm moves a pending reservation to confirmed. Confirming an already
// confirmed reservation is a no-op; terminal states reject.
func (s *BookingService) Confirm(ctx context.Context, id int64) (domain.Reservation, error) {
	res, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	switch res.Status {
	case domain.StatusConfirmed:
		return res, nil
	case domain.StatusCancelled, domain.StatusCompleted:
		return domain.Reservation{}, fmt.Errorf("%w: reservation is %s", domain.ErrConflict, res.Status)
	}
	ok, err := s.reservations.SetStatus(ctx, id, domain.StatusConfirmed, "", domain.StatusPending)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !ok {
		// Lost a race with another administrative actor.
		return domain.Reservation{}, fmt.Errorf("%w: reservation changed concurrently", domain.ErrConflict)
	}
	return s.reservations.GetReservation(ctx, id)
}

// Cancel moves a pending or confirmed reservation to cancelled. Cancelling
// an already cancelled reservation is idempotent; a completed stay rejects.
func (s *BookingService) Cancel(ctx context.Context, id int64, reason string) (domain.Reservation, error) {
	res, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	switch res.Status {
	case domain.StatusCancelled:
		return res, nil
	case domain.StatusCompleted:
		return domain.Reservation{}, fmt.Errorf("%w: completed stays cannot be cancelled", domain.ErrConflict)
	}
	ok, err := s.reservations.SetStatus(ctx, id, domain.StatusCancelled, reason,
		domain.StatusPending, domain.StatusConfirmed)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !ok {
		return domain.Reservation{}, fmt.Errorf("%w: reservation changed concurrently", domain.ErrConflict)
	}
	return s.reservations.GetReservation(ctx, id)
}
