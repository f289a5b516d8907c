package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount is the parent of every discount validation failure.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrInvalidTier is returned for percentage tiers outside 5, 10 and 20.
	ErrInvalidTier = fmt.Errorf("percentage tier must be 5, 10 or 20: %w", ErrInvalidDiscount)
	// ErrInvalidVoucherCode is returned when the voucher code is blank.
	ErrInvalidVoucherCode = fmt.Errorf("voucher code required: %w", ErrInvalidDiscount)
	// ErrInvalidVoucherAmount is returned when the voucher amount is not a positive number.
	ErrInvalidVoucherAmount = fmt.Errorf("voucher amount must be a positive number: %w", ErrInvalidDiscount)
)

// Kind names the active discount mechanism.
type Kind string

const (
	KindNone       Kind = "none"
	KindPercentage Kind = "percentage"
	KindVoucher    Kind = "voucher"
)

// Selection is the discount currently attached to an order. Exactly one of
// None, Percentage or Voucher is active at any time.
type Selection interface {
	Kind() Kind
	isSelection()
}

// None applies no discount.
type None struct{}

// Kind implements Selection.
func (None) Kind() Kind { return KindNone }
func (None) isSelection() {}

// Tier is a supported percentage discount.
type Tier int

const (
	Tier5  Tier = 5
	Tier10 Tier = 10
	Tier20 Tier = 20
)

// Valid reports whether t is one of the offered tiers.
func (t Tier) Valid() bool {
	switch t {
	case Tier5, Tier10, Tier20:
		return true
	default:
		return false
	}
}

// Rate returns the tier as a fraction, e.g. 0.1 for Tier10.
func (t Tier) Rate() Money {
	return decimal.NewFromInt(int64(t)).Div(hundred)
}

// Percentage discounts every unit by Tier percent.
type Percentage struct {
	Tier Tier
}

// Kind implements Selection.
func (Percentage) Kind() Kind { return KindPercentage }
func (Percentage) isSelection() {}

// Voucher is a fixed amount apportioned across lines by their share of the subtotal.
type Voucher struct {
	Code   string
	Amount Money
}

// Kind implements Selection.
func (Voucher) Kind() Kind { return KindVoucher }
func (Voucher) isSelection() {}

// NewPercentage validates the tier and returns the selection.
func NewPercentage(tier int) (Percentage, error) {
	t := Tier(tier)
	if !t.Valid() {
		return Percentage{}, ErrInvalidTier
	}
	return Percentage{Tier: t}, nil
}

// NewVoucher validates operator input for a voucher. The amount is parsed from
// its textual form so non-numeric input is rejected here rather than upstream.
func NewVoucher(code, amount string) (Voucher, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Voucher{}, ErrInvalidVoucherCode
	}
	raw := strings.TrimSpace(amount)
	if raw == "" {
		return Voucher{}, ErrInvalidVoucherAmount
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return Voucher{}, fmt.Errorf("parse %q: %w", raw, ErrInvalidVoucherAmount)
	}
	if !value.IsPositive() {
		return Voucher{}, ErrInvalidVoucherAmount
	}
	return Voucher{Code: code, Amount: value}, nil
}

// Describe renders the selection the way it appears in payment confirmations.
func Describe(sel Selection) string {
	switch s := normalize(sel).(type) {
	case Percentage:
		return fmt.Sprintf("with %d%% discount", int(s.Tier))
	case Voucher:
		return "with voucher " + s.Code
	default:
		return ""
	}
}

// Record is the serialisable form of a Selection.
type Record struct {
	Kind   Kind   `json:"kind"`
	Tier   int    `json:"tier,omitempty"`
	Code   string `json:"code,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// Encode converts a selection into its record form.
func Encode(sel Selection) Record {
	switch s := normalize(sel).(type) {
	case Percentage:
		return Record{Kind: KindPercentage, Tier: int(s.Tier)}
	case Voucher:
		return Record{Kind: KindVoucher, Code: s.Code, Amount: s.Amount.String()}
	default:
		return Record{Kind: KindNone}
	}
}

// Decode rebuilds a selection, applying the same validation as user input.
func Decode(r Record) (Selection, error) {
	switch r.Kind {
	case KindNone, "":
		return None{}, nil
	case KindPercentage:
		return NewPercentage(r.Tier)
	case KindVoucher:
		return NewVoucher(r.Code, r.Amount)
	default:
		return nil, fmt.Errorf("unknown discount kind %q: %w", r.Kind, ErrInvalidDiscount)
	}
}

func normalize(sel Selection) Selection {
	if sel == nil {
		return None{}
	}
	return sel
}
