package pricing_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/pricing"
)

func money(v string) pricing.Money {
	return decimal.RequireFromString(v)
}

func requireMoney(t *testing.T, want string, got pricing.Money) {
	t.Helper()
	require.Truef(t, money(want).Equal(got), "expected %s, got %s", want, got.String())
}

func twoLineCart() []pricing.Item {
	return []pricing.Item{
		{ID: "a", Qty: 1, UnitPrice: money("20")},
		{ID: "b", Qty: 1, UnitPrice: money("30")},
	}
}

func TestComputePercentage(t *testing.T) {
	sel, err := pricing.NewPercentage(10)
	require.NoError(t, err)
	summary := pricing.Compute(twoLineCart(), sel)
	requireMoney(t, "50", summary.Subtotal)
	requireMoney(t, "5", summary.Discount)
	requireMoney(t, "45", summary.Total)

	lines := pricing.Lines(twoLineCart(), sel)
	require.Len(t, lines, 2)
	requireMoney(t, "2", lines[0].Discount)
	requireMoney(t, "3", lines[1].Discount)
}

func TestPercentageAppliesPerUnit(t *testing.T) {
	items := []pricing.Item{{ID: "a", Qty: 3, UnitPrice: money("12.50")}}
	lines := pricing.Lines(items, pricing.Percentage{Tier: pricing.Tier20})
	requireMoney(t, "2.5", lines[0].PerUnit)
	requireMoney(t, "7.5", lines[0].Discount)
	requireMoney(t, "37.5", lines[0].Gross)
}

func TestVoucherApportionedBySubtotalShare(t *testing.T) {
	sel, err := pricing.NewVoucher("SPRING", "20")
	require.NoError(t, err)
	lines := pricing.Lines(twoLineCart(), sel)
	requireMoney(t, "8", lines[0].Discount)
	requireMoney(t, "12", lines[1].Discount)

	summary := pricing.Compute(twoLineCart(), sel)
	requireMoney(t, "20", summary.Discount)
	requireMoney(t, "30", summary.Total)
}

func TestVoucherClippedToSubtotal(t *testing.T) {
	sel, err := pricing.NewVoucher("BIG", "100")
	require.NoError(t, err)
	summary := pricing.Compute(twoLineCart(), sel)
	requireMoney(t, "50", summary.Discount)
	requireMoney(t, "0", summary.Total)

	lines := pricing.Lines(twoLineCart(), sel)
	requireMoney(t, "20", lines[0].Discount)
	requireMoney(t, "30", lines[1].Discount)
}

func TestVoucherOnZeroSubtotal(t *testing.T) {
	items := []pricing.Item{{ID: "free", Qty: 2, UnitPrice: money("0")}}
	sel, err := pricing.NewVoucher("ZERO", "15")
	require.NoError(t, err)
	for _, line := range pricing.Lines(items, sel) {
		require.True(t, line.Discount.IsZero())
		require.True(t, line.PerUnit.IsZero())
	}
	summary := pricing.Compute(items, sel)
	require.True(t, summary.Discount.IsZero())
	require.True(t, summary.Total.IsZero())
}

func TestNoneMeansNoDiscount(t *testing.T) {
	for _, sel := range []pricing.Selection{nil, pricing.None{}} {
		summary := pricing.Compute(twoLineCart(), sel)
		require.True(t, summary.Discount.IsZero())
		requireMoney(t, "50", summary.Total)
		for _, line := range pricing.Lines(twoLineCart(), sel) {
			require.True(t, line.Discount.IsZero())
		}
	}
}

func TestVoucherApportionmentSumsToEffectiveDiscount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tolerance := money("0.000000001")
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(5)
		items := make([]pricing.Item, 0, n)
		for j := 0; j < n; j++ {
			items = append(items, pricing.Item{
				ID:        string(rune('a' + j)),
				Qty:       1 + rng.Intn(4),
				UnitPrice: decimal.New(int64(rng.Intn(10_000)), -2),
			})
		}
		amount := decimal.New(int64(1+rng.Intn(40_000)), -2)
		sel := pricing.Voucher{Code: "V", Amount: amount}

		subtotal := pricing.Subtotal(items)
		sum := decimal.Zero
		gross := decimal.Zero
		for _, line := range pricing.Lines(items, sel) {
			require.True(t, line.Discount.LessThanOrEqual(line.Gross))
			sum = sum.Add(line.Discount)
			gross = gross.Add(line.Gross)
		}
		require.True(t, sum.LessThanOrEqual(gross.Add(tolerance)))
		if subtotal.IsPositive() {
			want := decimal.Min(amount, subtotal)
			require.Truef(t, sum.Sub(want).Abs().LessThanOrEqual(tolerance), "sum %s want %s", sum, want)
		}
		summary := pricing.Compute(items, sel)
		require.False(t, summary.Total.IsNegative())
		require.True(t, summary.Total.Equal(summary.Subtotal.Sub(summary.Discount)))
	}
}

func TestNewVoucherValidation(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		amount string
		want   error
	}{
		{name: "blank code", code: "  ", amount: "10", want: pricing.ErrInvalidVoucherCode},
		{name: "blank amount", code: "X", amount: "", want: pricing.ErrInvalidVoucherAmount},
		{name: "non numeric", code: "X", amount: "ten", want: pricing.ErrInvalidVoucherAmount},
		{name: "zero", code: "X", amount: "0", want: pricing.ErrInvalidVoucherAmount},
		{name: "negative", code: "X", amount: "-5", want: pricing.ErrInvalidVoucherAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pricing.NewVoucher(tc.code, tc.amount)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			require.True(t, errors.Is(err, pricing.ErrInvalidDiscount))
		})
	}

	v, err := pricing.NewVoucher(" SUMMER ", " 12.50 ")
	require.NoError(t, err)
	require.Equal(t, "SUMMER", v.Code)
	requireMoney(t, "12.5", v.Amount)
}

func TestNewPercentageRejectsUnknownTier(t *testing.T) {
	_, err := pricing.NewPercentage(15)
	require.ErrorIs(t, err, pricing.ErrInvalidTier)
	p, err := pricing.NewPercentage(5)
	require.NoError(t, err)
	require.Equal(t, pricing.Tier5, p.Tier)
}

func TestSelectionRecordRoundTrip(t *testing.T) {
	sel, err := pricing.Decode(pricing.Encode(pricing.Voucher{Code: "AB", Amount: money("7.25")}))
	require.NoError(t, err)
	v, ok := sel.(pricing.Voucher)
	require.True(t, ok)
	require.Equal(t, "AB", v.Code)
	requireMoney(t, "7.25", v.Amount)

	_, err = pricing.Decode(pricing.Record{Kind: "bogus"})
	require.ErrorIs(t, err, pricing.ErrInvalidDiscount)
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "", pricing.Describe(pricing.None{}))
	require.Equal(t, "with 10% discount", pricing.Describe(pricing.Percentage{Tier: pricing.Tier10}))
	require.Equal(t, "with voucher XMAS", pricing.Describe(pricing.Voucher{Code: "XMAS", Amount: money("5")}))
}
