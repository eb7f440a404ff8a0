package mysql

const getPropertySQL = `
SELECT id, name, slug, capacity, nightly_rate_cents, active
FROM properties
WHERE id = ? AND active = 1
`

const listPropertyIDsSQL = `
SELECT id FROM properties WHERE active = 1 ORDER BY id
`

const listRoomsSQL = `
SELECT id, property_id, name, capacity, nightly_rate_cents, active
FROM rooms
WHERE property_id = ?
ORDER BY id
`

// Serializes concurrent bookings per property: every commit locks this row
// first, making the in-transaction overlap re-check authoritative.
const lockPropertySQL = `
SELECT id FROM properties WHERE id = ? AND active = 1 FOR UPDATE
`

// One pass over active reservations intersecting [start,end), with their
// room associations flattened by the join. Half-open semantics: a range
// overlaps iff it starts before our end and ends after our start.
const overlappingReservationsSQL = `
SELECT r.id, r.kind, r.start_date, r.end_date, rr.room_id
FROM reservations r
LEFT JOIN reservation_rooms rr ON rr.reservation_id = r.id
WHERE r.property_id = ?
  AND r.status IN ('pending', 'confirmed')
  AND r.start_date < ?
  AND r.end_date > ?
ORDER BY r.id
`

// Live holds intersecting [start,end); rows already past expires_at are
// invisible, which is the whole of the lazy-expiry design.
const overlappingHoldsSQL = `
SELECT session_id, room_id, start_date, end_date
FROM holds
WHERE property_id = ?
  AND start_date < ?
  AND end_date > ?
  AND expires_at > ?
`

const insertReservationSQL = `
INSERT INTO reservations
  (property_id, kind, start_date, end_date, guests,
   contact_name, contact_email, contact_phone, notes,
   price_per_night_cents, total_cents, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertReservationRoomsPrefix = `
INSERT INTO reservation_rooms (reservation_id, room_id) VALUES `

const getReservationSQL = `
SELECT id, property_id, kind, start_date, end_date, guests,
       contact_name, contact_email, contact_phone, notes,
       price_per_night_cents, total_cents, status, cancel_reason, created_at
FROM reservations
WHERE id = ?
`

const reservationRoomIDsSQL = `
SELECT room_id FROM reservation_rooms WHERE reservation_id = ? ORDER BY room_id
`

const listReservationsSQL = `
SELECT id, property_id, kind, start_date, end_date, guests,
       contact_name, contact_email, contact_phone, notes,
       price_per_night_cents, total_cents, status, cancel_reason, created_at
FROM reservations
WHERE property_id = ?
ORDER BY created_at DESC, id DESC
`

const completeElapsedSQL = `
UPDATE reservations
SET status = 'completed'
WHERE status = 'confirmed' AND end_date <= ?
`

const insertHoldSQL = `
INSERT INTO holds (id, session_id, property_id, room_id, start_date, end_date, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

const renewHoldSQL = `
UPDATE holds SET expires_at = ? WHERE id = ? AND expires_at > ?
`

const getHoldSQL = `
SELECT id, session_id, property_id, room_id, start_date, end_date, expires_at
FROM holds
WHERE id = ?
`

const deleteHoldSQL = `
DELETE FROM holds WHERE id = ?
`

// Room-kind bookings append a room filter so holds outside the committed
// selection survive.
const deleteSessionHoldsSQL = `
DELETE FROM holds
WHERE session_id = ? AND property_id = ? AND start_date < ? AND end_date > ?
`

const purgeExpiredHoldsSQL = `
DELETE FROM holds WHERE property_id = ? AND expires_at <= ?
`
