package checkout

import (
	"fmt"
	"time"
)

// State is a checkout lifecycle state.
type State string

const (
	StateBuilding  State = "building"
	StateSubmitted State = "submitted"
	StateSucceeded State = "succeeded"
	StateCancelled State = "cancelled"
)

// RecordKey is the session key under which the checkout record is stored.
const RecordKey = "checkout"

// Record is the checkout state persisted in the session between the redirect to
// the provider and the return to the storefront.
type Record struct {
	ProviderSessionID string    `json:"provider_session_id,omitempty"`
	State             State     `json:"state"`
	Currency          string    `json:"currency,omitempty"`
	AmountMinor       int64     `json:"amount_minor,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Session is the session capability checkout needs.
type Session interface {
	CartData() ([]byte, bool)
	SetCartData(data []byte)
	MarkModified()
	Get(key string, dst any) (bool, error)
	Set(key string, v any) error
}

func loadRecord(s Session) (Record, bool) {
	var rec Record
	ok, err := s.Get(RecordKey, &rec)
	if err != nil || !ok {
		return Record{}, false
	}
	return rec, true
}

func saveRecord(s Session, rec Record) error {
	if err := s.Set(RecordKey, rec); err != nil {
		return fmt.Errorf("store checkout record: %w", err)
	}
	return nil
}
