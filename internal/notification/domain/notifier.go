package domain

import "context"

// Event describes a committed ledger change a clinic should hear about.
type Event struct {
	ClinicID    string `json:"clinic_id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Notifier delivers a single event to the clinic-facing channel. Delivery
// is advisory: a failed notification never affects the ledger.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
