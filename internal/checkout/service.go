package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/salon-pos/internal/cart"
	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/ledger"
	"github.com/noah-isme/salon-pos/internal/notify"
	"github.com/noah-isme/salon-pos/internal/obs"
	"github.com/noah-isme/salon-pos/internal/pricing"
)

var (
	// ErrInvalidMethod is returned for payment methods other than Card and Cash.
	ErrInvalidMethod = fmt.Errorf("payment method must be Card or Cash: %w", cart.ErrInvalidInput)
	// ErrLedgerUnavailable wraps ledger failures; the payment may be retried.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Method is the payment method chosen by the operator.
type Method string

const (
	MethodCard Method = "Card"
	MethodCash Method = "Cash"
)

// ParseMethod accepts a method name in any letter case.
func ParseMethod(raw string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "card":
		return MethodCard, nil
	case "cash":
		return MethodCash, nil
	default:
		return "", ErrInvalidMethod
	}
}

const retryMessage = "Payment could not be recorded. Please try again."

// Receipt describes a committed payment.
type Receipt struct {
	BatchID string          `json:"batchId"`
	Method  Method          `json:"method"`
	Summary pricing.Summary `json:"summary"`
	Entries []ledger.Entry  `json:"entries"`
	Message string          `json:"message"`
	Cart    cart.View       `json:"cart"`
}

// Service turns an order awaiting payment into one ledger batch.
type Service struct {
	Carts  *cart.Service
	Ledger ledger.Repository
	Notify notify.Sink
	Logger *zerolog.Logger
	Now    func() time.Time

	batches BatchIDs
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Pay records the order in cartID as paid by method. On success the ledger
// holds one entry per line, the operator is notified and the cart is reset.
// On failure nothing is committed and the cart stays awaiting payment.
//
// The batch id and timestamp are saved on the cart before the ledger append.
// If the cart cannot be saved after a committed append, the next Pay reuses
// them, the ledger rejects the batch as a duplicate and the cart completes
// without recording the sale twice.
func (s *Service) Pay(ctx context.Context, op common.Operator, cartID string, rawMethod string) (Receipt, error) {
	if s == nil || s.Carts == nil || s.Ledger == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	method, err := ParseMethod(rawMethod)
	if err != nil {
		return Receipt{}, err
	}

	ctx, span := otel.Tracer("checkout").Start(ctx, "Checkout.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.method", string(method)), attribute.String("cart.id", cartID))

	var (
		receipt   Receipt
		appendErr error
	)
	view, err := s.Carts.Transact(ctx, op, cartID, func(ctx context.Context, m *cart.Manager, save cart.SaveFunc) error {
		if err := m.Checkout(); err != nil {
			s.notifyError(ctx, cart.UserMessage(err))
			return err
		}
		pending := m.Pending()
		retry := pending != nil
		if !retry {
			now := s.now().Truncate(time.Millisecond)
			pending = &cart.PendingPayment{BatchID: s.batches.Next(now), Method: string(method), At: now}
			if err := m.BeginPayment(*pending); err != nil {
				return err
			}
			if err := save(ctx); err != nil {
				return fmt.Errorf("save pending payment: %w", err)
			}
		}

		paidWith := Method(pending.Method)
		entries := BuildEntries(pending.BatchID, pending.At, paidWith, m)
		if err := s.Ledger.Append(ctx, entries); err != nil {
			if !retry || !errors.Is(err, ledger.ErrDuplicateEntry) {
				appendErr = err
				m.AbortPayment()
				if saveErr := save(ctx); saveErr != nil && s.Logger != nil {
					s.Logger.Warn().Err(saveErr).Str("cart_id", cartID).Msg("checkout_abort_not_saved")
				}
				return nil
			}
			if s.Logger != nil {
				s.Logger.Info().Str("cart_id", cartID).Str("batch_id", pending.BatchID).Msg("checkout_batch_already_recorded")
			}
		}
		receipt = Receipt{
			BatchID: pending.BatchID,
			Method:  paidWith,
			Summary: m.Summary(),
			Entries: entries,
			Message: SuccessMessage(paidWith, m.Discount(), m.Customer(), m.Staff()),
		}
		m.Complete()
		if err := save(ctx); err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Str("cart_id", cartID).Str("batch_id", pending.BatchID).Msg("checkout_completion_not_saved")
		}
		return nil
	})
	result := "ok"
	switch {
	case err != nil:
		result = "rejected"
	case appendErr != nil:
		result = "error"
		err = fmt.Errorf("append batch: %v: %w", appendErr, ErrLedgerUnavailable)
	}
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(string(method), result).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		if appendErr != nil {
			s.notifyError(ctx, retryMessage)
			if s.Logger != nil {
				s.Logger.Error().Err(appendErr).Str("cart_id", cartID).Str("method", string(method)).Msg("checkout_failed")
			}
		}
		return Receipt{}, err
	}

	receipt.Cart = view
	span.SetAttributes(attribute.String("checkout.batch_id", receipt.BatchID), attribute.Int("checkout.entries", len(receipt.Entries)))
	if s.Notify != nil {
		s.Notify.NotifySuccess(ctx, receipt.Message)
	}
	if s.Logger != nil {
		s.Logger.Info().
			Str("batch_id", receipt.BatchID).
			Str("method", string(receipt.Method)).
			Str("operator_id", op.ID).
			Int("entries", len(receipt.Entries)).
			Str("total", receipt.Summary.Total.String()).
			Msg("checkout_completed")
	}
	return receipt, nil
}

func (s *Service) notifyError(ctx context.Context, msg string) {
	if s.Notify != nil {
		s.Notify.NotifyError(ctx, msg)
	}
}

// BuildEntries snapshots the order in m as ledger entries, one per line, with
// the discount apportioned by the pricing engine. Timestamps are kept to the
// millisecond, the resolution of report period bounds.
func BuildEntries(batchID string, at time.Time, method Method, m *cart.Manager) []ledger.Entry {
	at = at.Truncate(time.Millisecond)
	items := m.Items()
	lines := m.Lines()
	customer := m.Customer()
	staff := m.Staff()
	entries := make([]ledger.Entry, 0, len(items))
	for i, it := range items {
		e := ledger.Entry{
			ID:             batchID + "-" + it.ID,
			BatchID:        batchID,
			Timestamp:      at,
			ServiceName:    it.Name,
			Category:       it.Category,
			GrossAmount:    lines[i].Gross,
			DiscountAmount: lines[i].Discount,
			PaymentMethod:  string(method),
		}
		if customer != nil {
			e.CustomerID, e.CustomerName = customer.ID, customer.Name
		}
		if staff != nil {
			e.StaffID, e.StaffName = staff.ID, staff.Name
		}
		entries = append(entries, e)
	}
	return entries
}

// SuccessMessage renders the operator confirmation for a payment.
func SuccessMessage(method Method, sel pricing.Selection, customer, staff *cart.Party) string {
	var b strings.Builder
	b.WriteString("Payment processed via ")
	b.WriteString(string(method))
	if d := pricing.Describe(sel); d != "" {
		b.WriteString(" ")
		b.WriteString(d)
	}
	if customer != nil {
		b.WriteString(" for ")
		b.WriteString(customer.Name)
	}
	if staff != nil {
		b.WriteString(" by ")
		b.WriteString(staff.Name)
	}
	b.WriteString(". Thank you!")
	return b.String()
}
