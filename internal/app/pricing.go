package app

import (
	"fmt"
	"time"

	"lodgebook/internal/domain"
)

// Price computes the authoritative quote for a reservation shape.
// Whole-property stays use the property's nightly rate; room stays sum the
// selected rooms' rates. Guest count above the capacity of the selection is
// ErrCapacity, rejected before any write happens.
func Price(kind domain.Kind, start, end time.Time, property domain.Property, rooms []domain.Room, guests int) (domain.Quote, error) {
	nights, err := domain.Nights(start, end)
	if err != nil {
		return domain.Quote{}, err
	}

	var nightly int64
	var capacity int
	switch kind {
	case domain.KindWholeProperty:
		nightly = property.NightlyCents
		capacity = property.Capacity
	case domain.KindRooms:
		for _, r := range rooms {
			nightly += r.NightlyCents
			capacity += r.Capacity
		}
	default:
		return domain.Quote{}, fmt.Errorf("%w: unknown booking kind %q", domain.ErrValidation, kind)
	}

	if guests > capacity {
		return domain.Quote{}, fmt.Errorf("%w: %d guests over capacity %d", domain.ErrCapacity, guests, capacity)
	}

	return domain.Quote{
		NightlyCents: nightly,
		TotalCents:   nightly * int64(nights),
		Nights:       nights,
	}, nil
}
