package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lodgebook/internal/app"
	"lodgebook/internal/domain"
)

func newBookingService(st *memStore, pub *fakePublisher) *app.BookingService {
	avail := app.NewAvailabilityService(st, st)
	return app.NewBookingService(st, st, st, avail, pub)
}

func validRequest() domain.BookingRequest {
	return domain.BookingRequest{
		SessionID:  "sess-1",
		PropertyID: 1,
		Kind:       domain.KindWholeProperty,
		Start:      day("2025-06-10"),
		End:        day("2025-06-13"),
		Guests:     4,
		Contact:    domain.Contact{Name: "Nadia Ortega", Email: "nadia@example.com"},
	}
}

func TestCreate_WholePropertyPricedAndPublished(t *testing.T) {
	st := seedStore()
	pub := &fakePublisher{}
	svc := newBookingService(st, pub)

	res, err := svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.ID == 0 {
		t.Fatal("reservation id not assigned")
	}
	if res.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", res.Status)
	}
	if res.NightlyCents != 198000 || res.TotalCents != 594000 {
		t.Fatalf("unexpected pricing: nightly=%d total=%d", res.NightlyCents, res.TotalCents)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d events, want 1", pub.count())
	}
}

func TestCreate_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})

	req := validRequest()
	req.Guests = 0
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(st.reservations) != 0 {
		t.Fatal("rejected request must not write")
	}
}

func TestCreate_ConflictOnOverlap(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, validRequest()); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	req := validRequest()
	req.SessionID = "sess-2"
	req.Kind = domain.KindRooms
	req.RoomIDs = []int64{11}
	req.Guests = 2
	_, err := svc.Create(ctx, req)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreate_DeactivatedPropertyNotFound(t *testing.T) {
	st := seedStore()
	p := st.properties[1]
	p.Active = false
	st.properties[1] = p
	svc := newBookingService(st, &fakePublisher{})

	_, err := svc.Create(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreate_CapacityRejected(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})

	req := validRequest()
	req.Kind = domain.KindRooms
	req.RoomIDs = []int64{11} // capacity 2
	req.Guests = 5
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
}

func TestCreate_UnknownRoomRejected(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})

	req := validRequest()
	req.Kind = domain.KindRooms
	req.RoomIDs = []int64{999}
	req.Guests = 2
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreate_SpendsCoveringHolds(t *testing.T) {
	st := seedStore()
	st.holds = append(st.holds, domain.Hold{
		ID: "h1", SessionID: "sess-1", PropertyID: 1, RoomID: nil,
		Start: day("2025-06-10"), End: day("2025-06-13"),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	})
	svc := newBookingService(st, &fakePublisher{})

	if _, err := svc.Create(context.Background(), validRequest()); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(st.holds) != 0 {
		t.Fatalf("covering hold not released, %d left", len(st.holds))
	}
}

// Booking one room spends only the holds covering that selection; the
// session's hold on a different room stays live.
func TestCreate_KeepsHoldsOutsideSelection(t *testing.T) {
	st := seedStore()
	expiry := time.Now().UTC().Add(10 * time.Minute)
	st.holds = append(st.holds,
		domain.Hold{
			ID: "h-booked", SessionID: "sess-1", PropertyID: 1, RoomID: ptr[int64](11),
			Start: day("2025-06-10"), End: day("2025-06-13"), ExpiresAt: expiry,
		},
		domain.Hold{
			ID: "h-other", SessionID: "sess-1", PropertyID: 1, RoomID: ptr[int64](12),
			Start: day("2025-06-10"), End: day("2025-06-13"), ExpiresAt: expiry,
		},
	)
	svc := newBookingService(st, &fakePublisher{})

	req := validRequest()
	req.Kind = domain.KindRooms
	req.RoomIDs = []int64{11}
	req.Guests = 2
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(st.holds) != 1 || st.holds[0].ID != "h-other" {
		t.Fatalf("expected only the unbooked room's hold to survive, got %+v", st.holds)
	}
}

func TestCreate_OtherSessionHoldBlocks(t *testing.T) {
	st := seedStore()
	st.holds = append(st.holds, domain.Hold{
		ID: "h1", SessionID: "someone-else", PropertyID: 1, RoomID: ptr[int64](11),
		Start: day("2025-06-11"), End: day("2025-06-12"),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	})
	svc := newBookingService(st, &fakePublisher{})

	_, err := svc.Create(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreate_PublishFailureDoesNotFailBooking(t *testing.T) {
	st := seedStore()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newBookingService(st, pub)

	res, err := svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.ID == 0 {
		t.Fatal("booking must survive a publish failure")
	}
}

// Two sessions race for the same dates; the store's commit gate must admit
// exactly one.
func TestCreate_ConcurrentExactlyOneWins(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})

	const racers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req := validRequest()
			req.SessionID = ""
			_, errs[i] = svc.Create(context.Background(), req)
		}()
	}
	close(start)
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1 (conflicts=%d)", wins, conflicts)
	}
	if len(st.reservations) != 1 {
		t.Fatalf("store holds %d reservations, want 1", len(st.reservations))
	}
}

func TestConfirm_Transitions(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Confirm(ctx, res.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}

	// idempotent second confirm
	got, err = svc.Confirm(ctx, res.ID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}

	// cancelled reservations reject confirm
	if _, err := svc.Cancel(ctx, res.ID, "guest asked"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Confirm(ctx, res.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("confirm after cancel: err = %v, want ErrConflict", err)
	}
}

func TestCancel_Transitions(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Cancel(ctx, res.ID, "plans changed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.CancelReason != "plans changed" {
		t.Fatalf("unexpected: %+v", got)
	}

	// idempotent second cancel keeps the original reason
	got, err = svc.Cancel(ctx, res.ID, "other reason")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if got.CancelReason != "plans changed" {
		t.Fatalf("reason overwritten: %q", got.CancelReason)
	}
}

func TestCancel_CompletedRejects(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := st.CompleteElapsed(ctx, day("2025-07-01")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Cancel(ctx, res.ID, "too late"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

// Cancelling frees the dates for a new booking.
func TestCancel_ReleasesDates(t *testing.T) {
	st := seedStore()
	svc := newBookingService(st, &fakePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, res.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	req := validRequest()
	req.SessionID = "sess-2"
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("rebooking cancelled dates: %v", err)
	}
}
