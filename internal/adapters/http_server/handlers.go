package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lodgebook/internal/app"
	"lodgebook/internal/domain"
)

type Handlers struct {
	Q          *app.QueryService
	Booking    *app.BookingService
	Holds      *app.HoldService
	BookingRPS int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/properties/{id}", h.getProperty)
	s.mux.Get("/v1/properties/{id}/availability", h.getAvailability)

	s.mux.With(RateLimit(h.BookingRPS)).Post("/v1/reservations", h.createReservation)

	s.mux.Post("/v1/holds", h.createHold)
	s.mux.Post("/v1/holds/{id}/renew", h.renewHold)
	s.mux.Delete("/v1/holds/{id}", h.deleteHold)

	s.mux.Post("/v1/admin/reservations/{id}/confirm", h.confirmReservation)
	s.mux.Post("/v1/admin/reservations/{id}/cancel", h.cancelReservation)
	s.mux.Get("/v1/admin/properties/{id}/reservations", h.listReservations)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses. Unrecognized
// errors become 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrCapacity):
		writeProblem(w, http.StatusUnprocessableEntity, "Capacity Exceeded", err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeProblem(w, http.StatusGone, "Expired", err.Error())
	case errors.Is(err, domain.ErrPersistence):
		writeProblem(w, http.StatusBadGateway, "Storage Unavailable", "the booking store did not answer")
	default:
		log.Error().Err(err).Msg("unhandled error in handler")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ---- wire DTOs ----

type roomDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	NightlyCents int64  `json:"nightly_rate_cents"`
}

type propertyDTO struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Capacity     int       `json:"capacity"`
	NightlyCents int64     `json:"nightly_rate_cents"`
	Rooms        []roomDTO `json:"rooms"`
}

type availabilityDTO struct {
	Start         string    `json:"start_date"`
	End           string    `json:"end_date"`
	WholeProperty bool      `json:"whole_property"`
	Rooms         []roomDTO `json:"rooms"`
}

type contactDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type createReservationDTO struct {
	PropertyID int64      `json:"property_id"`
	Kind       string     `json:"kind"`
	RoomIDs    []int64    `json:"room_ids,omitempty"`
	Start      string     `json:"start_date"`
	End        string     `json:"end_date"`
	Guests     int        `json:"guests"`
	Contact    contactDTO `json:"contact"`
	Notes      string     `json:"notes,omitempty"`
}

type reservationDTO struct {
	ID           int64      `json:"id"`
	PropertyID   int64      `json:"property_id"`
	Kind         string     `json:"kind"`
	RoomIDs      []int64    `json:"room_ids,omitempty"`
	Start        string     `json:"start_date"`
	End          string     `json:"end_date"`
	Guests       int        `json:"guests"`
	Contact      contactDTO `json:"contact"`
	Notes        string     `json:"notes,omitempty"`
	NightlyCents int64      `json:"price_per_night_cents"`
	TotalCents   int64      `json:"total_cents"`
	Status       string     `json:"status"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type createHoldDTO struct {
	PropertyID int64  `json:"property_id"`
	RoomID     *int64 `json:"room_id,omitempty"`
	Start      string `json:"start_date"`
	End        string `json:"end_date"`
}

type holdDTO struct {
	ID         string    `json:"id"`
	PropertyID int64     `json:"property_id"`
	RoomID     *int64    `json:"room_id,omitempty"`
	Start      string    `json:"start_date"`
	End        string    `json:"end_date"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type cancelDTO struct {
	Reason string `json:"reason,omitempty"`
}

func toRoomDTOs(rooms []domain.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, roomDTO{ID: rm.ID, Name: rm.Name, Capacity: rm.Capacity, NightlyCents: rm.NightlyCents})
	}
	return out
}

func toReservationDTO(res domain.Reservation) reservationDTO {
	return reservationDTO{
		ID:         res.ID,
		PropertyID: res.PropertyID,
		Kind:       string(res.Kind),
		RoomIDs:    res.RoomIDs,
		Start:      res.Start.Format(domain.DateLayout),
		End:        res.End.Format(domain.DateLayout),
		Guests:     res.Guests,
		Contact: contactDTO{
			Name:  res.Contact.Name,
			Email: res.Contact.Email,
			Phone: res.Contact.Phone,
		},
		Notes:        res.Notes,
		NightlyCents: res.NightlyCents,
		TotalCents:   res.TotalCents,
		Status:       string(res.Status),
		CancelReason: res.CancelReason,
		CreatedAt:    res.CreatedAt,
	}
}

func toHoldDTO(h domain.Hold) holdDTO {
	return holdDTO{
		ID:         h.ID,
		PropertyID: h.PropertyID,
		RoomID:     h.RoomID,
		Start:      h.Start.Format(domain.DateLayout),
		End:        h.End.Format(domain.DateLayout),
		ExpiresAt:  h.ExpiresAt,
	}
}

// ---- marketing site ----

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	pv, err := h.Q.GetPropertyView(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := propertyDTO{
		ID:           pv.Property.ID,
		Name:         pv.Property.Name,
		Slug:         pv.Property.Slug,
		Capacity:     pv.Property.Capacity,
		NightlyCents: pv.Property.NightlyCents,
		Rooms:        toRoomDTOs(pv.Rooms),
	}

	etag, body := calcETagAndBody(resp)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getProperty body")
	}
}

func (h *Handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	start, err := domain.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Range", "start must be YYYY-MM-DD")
		return
	}
	end, err := domain.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Range", "end must be YYYY-MM-DD")
		return
	}
	session := r.Header.Get("X-Session-ID")

	view, err := h.Q.Availability(r.Context(), id, start, end, session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityDTO{
		Start:         start.Format(domain.DateLayout),
		End:           end.Format(domain.DateLayout),
		WholeProperty: view.WholeProperty,
		Rooms:         toRoomDTOs(view.Rooms),
	})
}

// ---- booking ----

func (h *Handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	var in createReservationDTO
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	start, err := domain.ParseDate(in.Start)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := domain.ParseDate(in.End)
	if err != nil {
		writeError(w, err)
		return
	}
	req := domain.BookingRequest{
		SessionID:  r.Header.Get("X-Session-ID"),
		PropertyID: in.PropertyID,
		Kind:       domain.Kind(in.Kind),
		RoomIDs:    in.RoomIDs,
		Start:      start,
		End:        end,
		Guests:     in.Guests,
		Contact:    domain.Contact{Name: in.Contact.Name, Email: in.Contact.Email, Phone: in.Contact.Phone},
		Notes:      in.Notes,
	}
	res, err := h.Booking.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// ---- holds ----

func (h *Handlers) createHold(w http.ResponseWriter, r *http.Request) {
	var in createHoldDTO
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	start, err := domain.ParseDate(in.Start)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := domain.ParseDate(in.End)
	if err != nil {
		writeError(w, err)
		return
	}
	hold, err := h.Holds.Acquire(r.Context(), r.Header.Get("X-Session-ID"), in.PropertyID, in.RoomID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldDTO(hold))
}

func (h *Handlers) renewHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.Holds.Renew(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldDTO(hold))
}

func (h *Handlers) deleteHold(w http.ResponseWriter, r *http.Request) {
	if err := h.Holds.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- admin panel ----

func (h *Handlers) confirmReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	res, err := h.Booking.Confirm(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

func (h *Handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var in cancelDTO
	if r.Body != nil {
		// reason is optional; an empty body is fine
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	res, err := h.Booking.Cancel(r.Context(), id, in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

func (h *Handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	list, err := h.Q.ListReservations(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]reservationDTO, 0, len(list))
	for _, res := range list {
		out = append(out, toReservationDTO(res))
	}
	writeJSON(w, http.StatusOK, out)
}
