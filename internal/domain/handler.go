package domain

import "time"

// HandlerTier enumerates handler privilege levels.
type HandlerTier string

const (
	HandlerTierOrdinary HandlerTier = "ORDINARY"
	HandlerTierElevated HandlerTier = "ELEVATED"
)

// Handler models a support operator who can be assigned tickets.
// Handler records are owned by the external identity directory; the
// engine reads them and never writes.
type Handler struct {
	ID        string
	Name      string
	Email     string
	Units     []string
	Tier      HandlerTier
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServesUnit reports whether the handler may take tickets of the unit.
// Elevated handlers serve every unit.
func (h Handler) ServesUnit(unit string) bool {
	if h.Tier == HandlerTierElevated {
		return true
	}
	for _, u := range h.Units {
		if u == unit {
			return true
		}
	}
	return false
}
