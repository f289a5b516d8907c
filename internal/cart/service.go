package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/lock"
	"github.com/noah-isme/salon-pos/internal/notify"
	"github.com/noah-isme/salon-pos/internal/pricing"
)

// View is a cart snapshot addressed by its id.
type View struct {
	ID string `json:"id"`
	Snapshot
}

// Service loads carts, applies one mutation under a per-cart lock and saves
// the result. A mutation that fails leaves the stored cart untouched.
type Service struct {
	Store   Store
	Locker  lock.Locker
	LockTTL time.Duration
	Logger  *zerolog.Logger
	Notify  notify.Sink
	Now     func() time.Time
	NewID   func() string

	// Currency prefixes amounts in operator messages.
	Currency string

	LookupProduct  func(ctx context.Context, id string) (Product, error)
	LookupCustomer func(ctx context.Context, id string) (Party, error)
	LookupStaff    func(ctx context.Context, id string) (Party, error)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) configured() error {
	if s == nil || s.Store == nil || s.Locker == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create opens a new empty cart for op.
func (s *Service) Create(ctx context.Context, op common.Operator) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	m := New(op)
	rec := Record{ID: s.newID(), OwnerID: op.ID, Order: m.Order(), UpdatedAt: s.now()}
	if err := s.Store.Put(ctx, rec); err != nil {
		return View{}, err
	}
	return View{ID: rec.ID, Snapshot: m.Snapshot()}, nil
}

// Get returns the current snapshot of the cart.
func (s *Service) Get(ctx context.Context, op common.Operator, id string) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	m, _, err := s.load(ctx, op, id)
	if err != nil {
		return View{}, err
	}
	return View{ID: id, Snapshot: m.Snapshot()}, nil
}

// SaveFunc persists the manager's current state.
type SaveFunc func(ctx context.Context) error

// Mutate runs fn against the cart while holding its lock and persists the
// result when fn succeeds.
func (s *Service) Mutate(ctx context.Context, op common.Operator, id string, fn func(context.Context, *Manager) error) (View, error) {
	return s.Transact(ctx, op, id, func(ctx context.Context, m *Manager, save SaveFunc) error {
		if err := fn(ctx, m); err != nil {
			s.reject(ctx, err)
			return err
		}
		return save(ctx)
	})
}

// Transact runs fn against the cart while holding its lock. fn decides when
// to persist by calling save, possibly more than once. The returned view
// reflects the manager as fn left it.
func (s *Service) Transact(ctx context.Context, op common.Operator, id string, fn func(context.Context, *Manager, SaveFunc) error) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	var view View
	err := s.Locker.WithLock(ctx, "lock:cart:"+id, s.lockTTL(), func(ctx context.Context) error {
		m, rec, err := s.load(ctx, op, id)
		if err != nil {
			return err
		}
		m.OnTransition = func(from, to Phase) {
			if s.Logger != nil {
				s.Logger.Debug().Str("cart_id", id).Str("from", string(from)).Str("to", string(to)).Msg("cart_transition")
			}
		}
		save := func(ctx context.Context) error {
			rec.Order = m.Order()
			rec.UpdatedAt = s.now()
			return s.Store.Put(ctx, rec)
		}
		if err := fn(ctx, m, save); err != nil {
			return err
		}
		view = View{ID: id, Snapshot: m.Snapshot()}
		return nil
	})
	return view, err
}

// AddItem adds one unit of the catalog service to the cart.
func (s *Service) AddItem(ctx context.Context, op common.Operator, id, serviceID string) (View, error) {
	if s.LookupProduct == nil {
		return View{}, errors.New("cart catalog lookup not configured")
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return View{}, fmt.Errorf("serviceId is required: %w", ErrInvalidInput)
	}
	product, err := s.LookupProduct(ctx, serviceID)
	if err != nil {
		return View{}, err
	}
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.AddItem(product)
	})
}

// UpdateQuantity adjusts a line by delta.
func (s *Service) UpdateQuantity(ctx context.Context, op common.Operator, id, lineID string, delta int) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.UpdateQuantity(lineID, delta)
	})
}

// RemoveItem drops a line.
func (s *Service) RemoveItem(ctx context.Context, op common.Operator, id, lineID string) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.RemoveItem(lineID)
	})
}

// SelectCustomer resolves customerID in the directory and selects it. An
// empty id clears the selection.
func (s *Service) SelectCustomer(ctx context.Context, op common.Operator, id, customerID string) (View, error) {
	party, err := resolve(ctx, s.LookupCustomer, customerID)
	if err != nil {
		return View{}, err
	}
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.SelectCustomer(party)
	})
}

// SelectStaff resolves staffID in the directory and selects it. An empty id
// clears the selection.
func (s *Service) SelectStaff(ctx context.Context, op common.Operator, id, staffID string) (View, error) {
	party, err := resolve(ctx, s.LookupStaff, staffID)
	if err != nil {
		return View{}, err
	}
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.SelectStaff(party)
	})
}

// ApplyPercentage selects a percentage tier.
func (s *Service) ApplyPercentage(ctx context.Context, op common.Operator, id string, tier int) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.ApplyPercentage(tier)
	})
}

// ApplyVoucher selects a voucher and confirms it to the operator.
func (s *Service) ApplyVoucher(ctx context.Context, op common.Operator, id, code, amount string) (View, error) {
	view, err := s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.ApplyVoucher(code, amount)
	})
	if err != nil {
		return View{}, err
	}
	if msg := s.DiscountMessage(view.Discount); msg != "" && s.Notify != nil {
		s.Notify.NotifySuccess(ctx, msg)
	}
	return view, nil
}

// DiscountMessage renders the confirmation for an applied discount. Only
// vouchers are confirmed.
func (s *Service) DiscountMessage(rec pricing.Record) string {
	if rec.Kind != pricing.KindVoucher {
		return ""
	}
	currency := "£"
	if s != nil && s.Currency != "" {
		currency = s.Currency
	}
	amount := rec.Amount
	if d, err := decimal.NewFromString(rec.Amount); err == nil {
		amount = d.StringFixed(2)
	}
	return fmt.Sprintf("Voucher %s applied for %s%s", rec.Code, currency, amount)
}

// RemoveDiscount clears the discount selection.
func (s *Service) RemoveDiscount(ctx context.Context, op common.Operator, id string) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.RemoveDiscount()
	})
}

// Checkout moves the cart to payment method selection.
func (s *Service) Checkout(ctx context.Context, op common.Operator, id string) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.Checkout()
	})
}

// CancelPayment returns the cart to editing.
func (s *Service) CancelPayment(ctx context.Context, op common.Operator, id string) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		return m.CancelPayment()
	})
}

// Clear discards the cart contents but keeps the cart id usable.
func (s *Service) Clear(ctx context.Context, op common.Operator, id string) (View, error) {
	return s.Mutate(ctx, op, id, func(_ context.Context, m *Manager) error {
		m.Clear()
		return nil
	})
}

// load restores the cart for op. Carts are visible to their owner and to
// operators allowed to reassign staff.
func (s *Service) load(ctx context.Context, op common.Operator, id string) (*Manager, Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, Record{}, fmt.Errorf("parse cart id: %w", ErrNotFound)
	}
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, Record{}, err
	}
	if rec.OwnerID != op.ID && !op.CanReassignStaff {
		return nil, Record{}, ErrNotFound
	}
	m, err := Restore(op, rec.Order)
	if err != nil {
		return nil, Record{}, fmt.Errorf("restore cart %s: %w", id, err)
	}
	return m, rec, nil
}

// reject surfaces validation failures to the operator.
func (s *Service) reject(ctx context.Context, err error) {
	if s.Notify == nil {
		return
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, pricing.ErrInvalidDiscount) || errors.Is(err, ErrStaffLocked) || errors.Is(err, ErrPaymentPending) {
		s.Notify.NotifyError(ctx, UserMessage(err))
	}
}

// UserMessage renders err as operator-facing text.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrCartEmpty):
		return "Please add a service before checkout"
	case errors.Is(err, ErrCustomerRequired):
		return "Please select a customer before checkout"
	case errors.Is(err, ErrStaffRequired):
		return "Please select a staff member before checkout"
	case errors.Is(err, ErrStaffLocked):
		return "Only managers can assign another staff member"
	case errors.Is(err, ErrPaymentPending):
		return "Payment is being recorded. Retry the payment or clear the cart"
	case errors.Is(err, pricing.ErrInvalidVoucherCode):
		return "Please enter a voucher code"
	case errors.Is(err, pricing.ErrInvalidVoucherAmount):
		return "Please enter a valid voucher amount"
	case errors.Is(err, pricing.ErrInvalidTier):
		return "Please choose a 5%, 10% or 20% discount"
	default:
		return err.Error()
	}
}

func resolve(ctx context.Context, lookup func(context.Context, string) (Party, error), id string) (*Party, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if lookup == nil {
		return nil, errors.New("cart directory lookup not configured")
	}
	party, err := lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &party, nil
}
