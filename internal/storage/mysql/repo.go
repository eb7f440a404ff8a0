package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"lodgebook/internal/domain"
)

// Repo implements the domain repositories over MySQL. Conflict authority
// lives here: CreateReservation re-checks the no-overlap invariant under a
// property row lock, so the application-level checks can stay advisory.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// pe wraps driver failures as ErrPersistence; domain errors pass through so
// errors.Is keeps working at the coordinator boundary.
func pe(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrExpired, domain.ErrValidation} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func day(t time.Time) string { return t.UTC().Format(domain.DateLayout) }

// ---- inventory ----

func (r *Repo) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	var p domain.Property
	err := r.db.QueryRowContext(ctx, getPropertySQL, id).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Capacity, &p.NightlyCents, &p.Active,
	)
	if err == sql.ErrNoRows {
		return domain.Property{}, fmt.Errorf("%w: property %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Property{}, pe("get property", err)
	}
	return p, nil
}

func (r *Repo) ListPropertyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listPropertyIDsSQL)
	if err != nil {
		return nil, pe("list property ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, pe("scan property id", err)
		}
		ids = append(ids, id)
	}
	return ids, pe("list property ids", rows.Err())
}

func (r *Repo) ListRooms(ctx context.Context, propertyID int64) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, listRoomsSQL, propertyID)
	if err != nil {
		return nil, pe("list rooms", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.PropertyID, &rm.Name, &rm.Capacity, &rm.NightlyCents, &rm.Active); err != nil {
			return nil, pe("scan room", err)
		}
		out = append(out, rm)
	}
	return out, pe("list rooms", rows.Err())
}

func (r *Repo) GetRooms(ctx context.Context, propertyID int64, ids []int64) ([]domain.Room, error) {
	all, err := r.ListRooms(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Room, len(all))
	for _, rm := range all {
		byID[rm.ID] = rm
	}
	out := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		rm, ok := byID[id]
		if !ok || !rm.Active {
			return nil, fmt.Errorf("%w: room %d does not belong to property %d", domain.ErrValidation, id, propertyID)
		}
		out = append(out, rm)
	}
	return out, nil
}

// ---- availability snapshot ----

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *Repo) OverlappingClaims(ctx context.Context, propertyID int64, start, end, now time.Time) ([]domain.Claim, error) {
	return overlappingClaims(ctx, r.db, propertyID, start, end, now)
}

func overlappingClaims(ctx context.Context, q querier, propertyID int64, start, end, now time.Time) ([]domain.Claim, error) {
	var claims []domain.Claim

	rows, err := q.QueryContext(ctx, overlappingReservationsSQL, propertyID, day(end), day(start))
	if err != nil {
		return nil, pe("overlapping reservations", err)
	}
	defer rows.Close()

	// The join flattens reservation rooms; fold rows back into one claim
	// per reservation.
	index := make(map[int64]int)
	for rows.Next() {
		var (
			id     int64
			kind   string
			rs, re time.Time
			roomID sql.NullInt64
		)
		if err := rows.Scan(&id, &kind, &rs, &re, &roomID); err != nil {
			return nil, pe("scan reservation claim", err)
		}
		i, ok := index[id]
		if !ok {
			claims = append(claims, domain.Claim{
				Whole: kind == string(domain.KindWholeProperty),
				Start: rs,
				End:   re,
			})
			i = len(claims) - 1
			index[id] = i
		}
		if roomID.Valid {
			claims[i].RoomIDs = append(claims[i].RoomIDs, roomID.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, pe("overlapping reservations", err)
	}

	hrows, err := q.QueryContext(ctx, overlappingHoldsSQL, propertyID, day(end), day(start), now.UTC())
	if err != nil {
		return nil, pe("overlapping holds", err)
	}
	defer hrows.Close()

	for hrows.Next() {
		var (
			session string
			roomID  sql.NullInt64
			hs, he  time.Time
		)
		if err := hrows.Scan(&session, &roomID, &hs, &he); err != nil {
			return nil, pe("scan hold claim", err)
		}
		c := domain.Claim{Session: session, Start: hs, End: he, Whole: !roomID.Valid}
		if roomID.Valid {
			c.RoomIDs = []int64{roomID.Int64}
		}
		claims = append(claims, c)
	}
	return claims, pe("overlapping holds", hrows.Err())
}

// ---- reservations ----

func (r *Repo) CreateReservation(ctx context.Context, res *domain.Reservation, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pe("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the property row so concurrent commits for the same property
	// serialize; the overlap re-check below then sees every winner.
	var locked int64
	if err := tx.QueryRowContext(ctx, lockPropertySQL, res.PropertyID).Scan(&locked); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: property %d", domain.ErrNotFound, res.PropertyID)
		}
		return pe("lock property", err)
	}

	claims, err := overlappingClaims(ctx, tx, res.PropertyID, res.Start, res.End, time.Now().UTC())
	if err != nil {
		return err
	}
	if domain.ClaimsBlock(claims, res.Kind, res.RoomIDs, sessionID) {
		return fmt.Errorf("%w: a concurrent booking won the requested dates", domain.ErrConflict)
	}

	result, err := tx.ExecContext(ctx, insertReservationSQL,
		res.PropertyID, string(res.Kind), day(res.Start), day(res.End), res.Guests,
		res.Contact.Name, res.Contact.Email, nullStr(res.Contact.Phone), nullStr(res.Notes),
		res.NightlyCents, res.TotalCents, string(res.Status),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: exclusion guard rejected the insert", domain.ErrConflict)
		}
		return pe("insert reservation", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return pe("reservation id", err)
	}
	res.ID = id

	if len(res.RoomIDs) > 0 {
		values := make([]string, 0, len(res.RoomIDs))
		args := make([]any, 0, len(res.RoomIDs)*2)
		for _, roomID := range res.RoomIDs {
			values = append(values, "(?, ?)")
			args = append(args, id, roomID)
		}
		if _, err := tx.ExecContext(ctx, insertReservationRoomsPrefix+strings.Join(values, ","), args...); err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: exclusion guard rejected the insert", domain.ErrConflict)
			}
			return pe("insert reservation rooms", err)
		}
	}

	var createdAt time.Time
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM reservations WHERE id = ?`, id).Scan(&createdAt); err != nil {
		return pe("read created_at", err)
	}
	res.CreatedAt = createdAt.UTC()

	if err := tx.Commit(); err != nil {
		return pe("commit reservation", err)
	}
	committed = true
	return nil
}

func scanReservation(scan func(dest ...any) error) (domain.Reservation, error) {
	var (
		res          domain.Reservation
		kind, status string
		phone, notes sql.NullString
		reason       sql.NullString
	)
	err := scan(
		&res.ID, &res.PropertyID, &kind, &res.Start, &res.End, &res.Guests,
		&res.Contact.Name, &res.Contact.Email, &phone, &notes,
		&res.NightlyCents, &res.TotalCents, &status, &reason, &res.CreatedAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}
	res.Kind = domain.Kind(kind)
	res.Status = domain.Status(status)
	res.Contact.Phone = phone.String
	res.Notes = notes.String
	res.CancelReason = reason.String
	return res, nil
}

func (r *Repo) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	row := r.db.QueryRowContext(ctx, getReservationSQL, id)
	res, err := scanReservation(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Reservation{}, fmt.Errorf("%w: reservation %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Reservation{}, pe("get reservation", err)
	}

	rows, err := r.db.QueryContext(ctx, reservationRoomIDsSQL, id)
	if err != nil {
		return domain.Reservation{}, pe("reservation rooms", err)
	}
	defer rows.Close()
	for rows.Next() {
		var roomID int64
		if err := rows.Scan(&roomID); err != nil {
			return domain.Reservation{}, pe("scan reservation room", err)
		}
		res.RoomIDs = append(res.RoomIDs, roomID)
	}
	return res, pe("reservation rooms", rows.Err())
}

func (r *Repo) ListByProperty(ctx context.Context, propertyID int64) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, listReservationsSQL, propertyID)
	if err != nil {
		return nil, pe("list reservations", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	index := make(map[int64]int)
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, pe("scan reservation", err)
		}
		index[res.ID] = len(out)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, pe("list reservations", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	// one query for all room associations in the page
	placeholders := make([]string, 0, len(out))
	args := make([]any, 0, len(out))
	for _, res := range out {
		placeholders = append(placeholders, "?")
		args = append(args, res.ID)
	}
	q := `SELECT reservation_id, room_id FROM reservation_rooms WHERE reservation_id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY reservation_id, room_id`
	rrows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, pe("list reservation rooms", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var resID, roomID int64
		if err := rrows.Scan(&resID, &roomID); err != nil {
			return nil, pe("scan reservation room", err)
		}
		if i, ok := index[resID]; ok {
			out[i].RoomIDs = append(out[i].RoomIDs, roomID)
		}
	}
	return out, pe("list reservation rooms", rrows.Err())
}

func (r *Repo) SetStatus(ctx context.Context, id int64, to domain.Status, reason string, from ...domain.Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := make([]string, 0, len(from))
	args := []any{string(to), reason, reason, id}
	for _, st := range from {
		placeholders = append(placeholders, "?")
		args = append(args, string(st))
	}
	q := `UPDATE reservations
SET status = ?, cancel_reason = CASE WHEN ? = '' THEN cancel_reason ELSE ? END
WHERE id = ? AND status IN (` + strings.Join(placeholders, ",") + `)`
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, pe("set status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, pe("set status", err)
	}
	return n > 0, nil
}

func (r *Repo) CompleteElapsed(ctx context.Context, today time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, completeElapsedSQL, day(today))
	if err != nil {
		return 0, pe("complete elapsed", err)
	}
	n, err := result.RowsAffected()
	return n, pe("complete elapsed", err)
}

// ---- holds ----

func (r *Repo) InsertHold(ctx context.Context, h domain.Hold) error {
	var roomID any
	if h.RoomID != nil {
		roomID = *h.RoomID
	}
	_, err := r.db.ExecContext(ctx, insertHoldSQL,
		h.ID, h.SessionID, h.PropertyID, roomID, day(h.Start), day(h.End), h.ExpiresAt.UTC(),
	)
	return pe("insert hold", err)
}

func (r *Repo) RenewHold(ctx context.Context, id string, until, now time.Time) (domain.Hold, error) {
	result, err := r.db.ExecContext(ctx, renewHoldSQL, until.UTC(), id, now.UTC())
	if err != nil {
		return domain.Hold{}, pe("renew hold", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return domain.Hold{}, pe("renew hold", err)
	}
	if n == 0 {
		// either gone or lapsed; look to tell the caller which
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM holds WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return domain.Hold{}, fmt.Errorf("%w: hold %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return domain.Hold{}, pe("renew hold", err)
		}
		return domain.Hold{}, fmt.Errorf("%w: hold %s", domain.ErrExpired, id)
	}
	return r.getHold(ctx, id)
}

func (r *Repo) getHold(ctx context.Context, id string) (domain.Hold, error) {
	var (
		h      domain.Hold
		roomID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, getHoldSQL, id).Scan(
		&h.ID, &h.SessionID, &h.PropertyID, &roomID, &h.Start, &h.End, &h.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return domain.Hold{}, fmt.Errorf("%w: hold %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Hold{}, pe("get hold", err)
	}
	if roomID.Valid {
		h.RoomID = &roomID.Int64
	}
	return h, nil
}

func (r *Repo) DeleteHold(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, deleteHoldSQL, id)
	return pe("delete hold", err)
}

func (r *Repo) DeleteSessionHolds(ctx context.Context, sessionID string, propertyID int64, roomIDs []int64, start, end time.Time) (int64, error) {
	query := deleteSessionHoldsSQL
	args := []any{sessionID, propertyID, day(end), day(start)}
	if len(roomIDs) > 0 {
		placeholders := make([]string, len(roomIDs))
		for i, id := range roomIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND (room_id IS NULL OR room_id IN (` + strings.Join(placeholders, ",") + `))`
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, pe("delete session holds", err)
	}
	n, err := result.RowsAffected()
	return n, pe("delete session holds", err)
}

func (r *Repo) PurgeExpired(ctx context.Context, propertyID int64, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, purgeExpiredHoldsSQL, propertyID, now.UTC())
	if err != nil {
		return 0, pe("purge holds", err)
	}
	n, err := result.RowsAffected()
	return n, pe("purge holds", err)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
