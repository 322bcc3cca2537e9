package pending

import (
	"context"
	"errors"
	"time"
)

// DefaultKey is the fixed slot holding the last in-flight purchase.
const DefaultKey = "in_flight_purchase"

var ErrNotFound = errors.New("pending purchase not found")

// Record is the metadata persisted while a purchase is in flight, so a
// purchase update delivered after an app relaunch can be attributed.
type Record struct {
	AttemptID      string    `json:"attempt_id"`
	Provider       string    `json:"provider"`
	ProductID      string    `json:"product_id"`
	Description    string    `json:"description"`
	Amount         int64     `json:"amount"`
	IsSubscription bool      `json:"is_subscription"`
	StartedAt      time.Time `json:"started_at"`
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := *r
	return &cloned
}

type Store interface {
	// Get returns ErrNotFound when nothing is stored under key.
	Get(ctx context.Context, key string) (*Record, error)
	// Set replaces whatever is stored under key.
	Set(ctx context.Context, key string, record *Record) error
	// Clear is a no-op when nothing is stored under key.
	Clear(ctx context.Context, key string) error
}
