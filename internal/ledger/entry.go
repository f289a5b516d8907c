package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidEntry indicates an entry violating ledger invariants. Reaching
	// it from a public cart operation is a programming error.
	ErrInvalidEntry = errors.New("ledger: invalid entry")
	// ErrDuplicateEntry is returned when an entry id is already recorded.
	ErrDuplicateEntry = errors.New("ledger: duplicate entry")
)

// Entry is one immutable completed-sale record. Entries sharing BatchID were
// produced by the same checkout.
type Entry struct {
	ID             string          `json:"entryId"`
	BatchID        string          `json:"batchId"`
	Timestamp      time.Time       `json:"timestamp"`
	CustomerID     string          `json:"customerId"`
	CustomerName   string          `json:"customerName"`
	StaffID        string          `json:"staffId"`
	StaffName      string          `json:"staffName"`
	ServiceName    string          `json:"serviceName"`
	Category       string          `json:"category"`
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	PaymentMethod  string          `json:"paymentMethod"`
}

// Net returns gross minus discount.
func (e Entry) Net() decimal.Decimal {
	return e.GrossAmount.Sub(e.DiscountAmount)
}

// Validate checks the invariants every stored entry must satisfy.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("%w: entry id missing", ErrInvalidEntry)
	case strings.TrimSpace(e.BatchID) == "":
		return fmt.Errorf("%w: batch id missing on %s", ErrInvalidEntry, e.ID)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp missing on %s", ErrInvalidEntry, e.ID)
	case e.GrossAmount.IsNegative():
		return fmt.Errorf("%w: negative gross on %s", ErrInvalidEntry, e.ID)
	case e.DiscountAmount.IsNegative():
		return fmt.Errorf("%w: negative discount on %s", ErrInvalidEntry, e.ID)
	case e.DiscountAmount.GreaterThan(e.GrossAmount):
		return fmt.Errorf("%w: discount exceeds gross on %s", ErrInvalidEntry, e.ID)
	}
	return nil
}

// Repository is the append-only ledger consumed by checkout and reporting.
type Repository interface {
	// Append records every entry or none of them.
	Append(ctx context.Context, entries []Entry) error
	// Query returns entries with start <= timestamp <= end in insertion order.
	Query(ctx context.Context, start, end time.Time) ([]Entry, error)
}

// ValidateBatch validates all entries and rejects duplicate ids within the batch.
func ValidateBatch(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("%w: %s repeated in batch", ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// InRange reports whether t lies within [start, end].
func InRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// Batch groups the entries of one sale.
type Batch struct {
	ID      string  `json:"batchId"`
	Entries []Entry `json:"entries"`
}

// Net sums the net amount of the batch.
func (b Batch) Net() decimal.Decimal {
	total := decimal.Zero
	for _, e := range b.Entries {
		total = total.Add(e.Net())
	}
	return total
}

// Batches groups entries by batch id in order of first appearance.
func Batches(entries []Entry) []Batch {
	index := map[string]int{}
	var out []Batch
	for _, e := range entries {
		i, ok := index[e.BatchID]
		if !ok {
			i = len(out)
			index[e.BatchID] = i
			out = append(out, Batch{ID: e.BatchID})
		}
		out[i].Entries = append(out[i].Entries, e)
	}
	return out
}
