package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the shop currency.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// Item describes a line item used for pricing calculation.
type Item struct {
	ID        string
	Qty       int
	UnitPrice Money
}

// Gross returns UnitPrice × Qty, treating non-positive quantities as empty.
func (it Item) Gross() Money {
	if it.Qty <= 0 {
		return decimal.Zero
	}
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty)))
}

// LineDiscount is the discount apportioned to one line.
type LineDiscount struct {
	ID       string `json:"id"`
	Gross    Money  `json:"gross"`
	PerUnit  Money  `json:"perUnit"`
	Discount Money  `json:"discount"`
}

// Net returns the line total after discount.
func (l LineDiscount) Net() Money {
	return l.Gross.Sub(l.Discount)
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Subtotal sums the gross value of the items.
func Subtotal(items []Item) Money {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Gross())
	}
	return subtotal
}

// Lines computes the discount of every item under sel, in item order.
func Lines(items []Item, sel Selection) []LineDiscount {
	subtotal := Subtotal(items)
	out := make([]LineDiscount, 0, len(items))
	for _, it := range items {
		gross := it.Gross()
		line := LineDiscount{ID: it.ID, Gross: gross, PerUnit: decimal.Zero, Discount: decimal.Zero}
		switch s := normalize(sel).(type) {
		case None:
		case Percentage:
			line.PerUnit = it.UnitPrice.Mul(s.Tier.Rate())
			line.Discount = gross.Mul(s.Tier.Rate())
		case Voucher:
			// subtotal = 0 leaves every share undefined; no discount.
			if subtotal.IsPositive() && gross.IsPositive() {
				share := s.Amount.Mul(gross).Div(subtotal)
				line.Discount = decimal.Min(share, gross)
				line.PerUnit = line.Discount.Div(decimal.NewFromInt(int64(it.Qty)))
			}
		default:
			panic(fmt.Sprintf("pricing: unhandled selection %T", sel))
		}
		out = append(out, line)
	}
	return out
}

// Compute calculates order totals for the items under sel.
func Compute(items []Item, sel Selection) Summary {
	subtotal := Subtotal(items)
	discount := decimal.Zero
	switch s := normalize(sel).(type) {
	case None:
	case Percentage:
		discount = subtotal.Mul(s.Tier.Rate())
	case Voucher:
		discount = decimal.Min(s.Amount, subtotal)
	default:
		panic(fmt.Sprintf("pricing: unhandled selection %T", sel))
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
	}
}
