package domain

// Property is a lodging unit that can be booked whole or room by room.
// Rates are nightly, in integer cents.
type Property struct {
	ID           int64
	Name         string
	Slug         string
	Capacity     int
	NightlyCents int64
	Active       bool
}

// Room is a bookable sub-unit of a property.
type Room struct {
	ID           int64
	PropertyID   int64
	Name         string
	Capacity     int
	NightlyCents int64
	Active       bool
}

// PropertyView is the read model served to the marketing site: the property
// plus its active rooms, cacheable as one unit.
type PropertyView struct {
	Property Property
	Rooms    []Room
}
