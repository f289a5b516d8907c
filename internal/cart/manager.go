package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/pricing"
)

var (
	// ErrInvalidInput is the parent of every cart validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = fmt.Errorf("cart not found: %w", common.ErrNotFound)
	// ErrLineNotFound indicates the order has no line with the given id.
	ErrLineNotFound = fmt.Errorf("line not found: %w", common.ErrNotFound)
	// ErrCartEmpty is returned when checking out an order without lines.
	ErrCartEmpty = fmt.Errorf("cart is empty: %w", ErrInvalidInput)
	// ErrCustomerRequired is returned when checking out without a customer.
	ErrCustomerRequired = fmt.Errorf("customer required: %w", ErrInvalidInput)
	// ErrStaffRequired is returned when checking out without a staff member.
	ErrStaffRequired = fmt.Errorf("staff required: %w", ErrInvalidInput)
	// ErrStaffLocked is returned when an operator without reassignment rights
	// tries to change the staff member.
	ErrStaffLocked = errors.New("staff assignment is locked to the operator")
	// ErrPaymentConfirmed is returned for edits attempted after payment.
	ErrPaymentConfirmed = errors.New("payment already confirmed")
	// ErrPaymentPending is returned for edits while a payment attempt is
	// unresolved. Retrying the payment or clearing the cart resolves it.
	ErrPaymentPending = errors.New("payment in progress")
)

// Phase is the checkout state of an order.
type Phase string

const (
	PhaseEmpty            Phase = "empty"
	PhaseBuilding         Phase = "building"
	PhaseAwaitingCheckout Phase = "awaiting_checkout"
	PhaseAwaitingPayment  Phase = "awaiting_payment"
	PhaseCompleted        Phase = "completed"
	PhaseCancelled        Phase = "cancelled"
)

// Party is a customer or staff reference held by value.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LineItem is one service in the order.
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category"`
}

// Product is the catalog data needed to add a line.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
}

// PendingPayment pins the batch a payment attempt writes to the ledger, so a
// retry after an unconfirmed attempt reuses the same entry ids.
type PendingPayment struct {
	BatchID string    `json:"batchId"`
	Method  string    `json:"method"`
	At      time.Time `json:"at"`
}

// Order is the persisted form of a cart.
type Order struct {
	Items    []LineItem      `json:"items"`
	Customer *Party          `json:"customer,omitempty"`
	Staff    *Party          `json:"staff,omitempty"`
	Discount pricing.Record  `json:"discount"`
	Phase    Phase           `json:"phase"`
	Pending  *PendingPayment `json:"pending,omitempty"`
}

// Manager owns one in-progress order and enforces its state machine. It is not
// safe for concurrent use; Service serialises access per cart.
type Manager struct {
	operator common.Operator
	items    []LineItem
	customer *Party
	staff    *Party
	discount pricing.Selection
	phase    Phase
	pending  *PendingPayment

	// OnTransition observes phase changes, including the transient
	// Completed and Cancelled phases.
	OnTransition func(from, to Phase)
}

// New starts an empty order for op. Operators who cannot reassign staff have
// themselves pre-selected as the staff member.
func New(op common.Operator) *Manager {
	m := &Manager{operator: op, discount: pricing.None{}, phase: PhaseEmpty}
	m.resetStaff()
	return m
}

// Restore rebuilds a manager from a stored order on behalf of op.
func Restore(op common.Operator, o Order) (*Manager, error) {
	sel, err := pricing.Decode(o.Discount)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		operator: op,
		items:    make([]LineItem, 0, len(o.Items)),
		customer: cloneParty(o.Customer),
		staff:    cloneParty(o.Staff),
		discount: sel,
		phase:    o.Phase,
		pending:  clonePending(o.Pending),
	}
	for _, it := range o.Items {
		if it.Quantity > 0 {
			m.items = append(m.items, it)
		}
	}
	if !op.CanReassignStaff && m.staff == nil {
		m.resetStaff()
	}
	switch {
	case len(m.items) == 0:
		m.phase = PhaseEmpty
		m.pending = nil
	case m.pending != nil:
		m.phase = PhaseAwaitingPayment
	case m.phase == PhaseEmpty || m.phase == PhaseCompleted || m.phase == PhaseCancelled || m.phase == "":
		m.phase = PhaseBuilding
	}
	return m, nil
}

// Operator returns the operator the manager acts for.
func (m *Manager) Operator() common.Operator { return m.operator }

// Phase returns the current phase.
func (m *Manager) Phase() Phase { return m.phase }

// Customer returns the selected customer, if any.
func (m *Manager) Customer() *Party { return cloneParty(m.customer) }

// Staff returns the selected staff member, if any.
func (m *Manager) Staff() *Party { return cloneParty(m.staff) }

// Discount returns the active discount selection.
func (m *Manager) Discount() pricing.Selection { return m.discount }

// Pending returns the unresolved payment attempt, if any.
func (m *Manager) Pending() *PendingPayment { return clonePending(m.pending) }

// Items returns a copy of the line items in insertion order.
func (m *Manager) Items() []LineItem {
	return append([]LineItem(nil), m.items...)
}

// AddItem increments the line for p or appends a new line with quantity 1.
func (m *Manager) AddItem(p Product) error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("item id required: %w", ErrInvalidInput)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("item price must not be negative: %w", ErrInvalidInput)
	}
	if i := m.indexOf(p.ID); i >= 0 {
		m.items[i].Quantity++
	} else {
		category := p.Category
		if strings.TrimSpace(category) == "" {
			category = "unknown"
		}
		m.items = append(m.items, LineItem{ID: p.ID, Name: p.Name, UnitPrice: p.Price, Quantity: 1, Category: category})
	}
	m.edited()
	return nil
}

// UpdateQuantity adds delta to the line's quantity, clamping at zero. A line
// reaching zero is removed.
func (m *Manager) UpdateQuantity(id string, delta int) error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("line %s: %w", id, ErrLineNotFound)
	}
	qty := m.items[i].Quantity + delta
	if qty <= 0 {
		m.items = append(m.items[:i], m.items[i+1:]...)
	} else {
		m.items[i].Quantity = qty
	}
	m.edited()
	return nil
}

// RemoveItem drops the line regardless of quantity.
func (m *Manager) RemoveItem(id string) error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("line %s: %w", id, ErrLineNotFound)
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	m.edited()
	return nil
}

// SelectCustomer sets the customer, or clears it when c is nil.
func (m *Manager) SelectCustomer(c *Party) error {
	if m.phase == PhaseCompleted {
		return ErrPaymentConfirmed
	}
	if m.pending != nil {
		return ErrPaymentPending
	}
	if c != nil && strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("customer id required: %w", ErrInvalidInput)
	}
	m.customer = cloneParty(c)
	m.edited()
	return nil
}

// SelectStaff sets the staff member, or clears it when s is nil. Only
// operators allowed to reassign staff may change it away from themselves.
func (m *Manager) SelectStaff(s *Party) error {
	if m.phase == PhaseCompleted {
		return ErrPaymentConfirmed
	}
	if m.pending != nil {
		return ErrPaymentPending
	}
	if s != nil && strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("staff id required: %w", ErrInvalidInput)
	}
	if !m.operator.CanReassignStaff {
		if s != nil && s.ID == m.operator.ID {
			return nil
		}
		return ErrStaffLocked
	}
	m.staff = cloneParty(s)
	m.edited()
	return nil
}

// ApplyPercentage replaces the active discount with a percentage tier. An
// invalid tier leaves the prior selection unchanged.
func (m *Manager) ApplyPercentage(tier int) error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	sel, err := pricing.NewPercentage(tier)
	if err != nil {
		return err
	}
	m.discount = sel
	m.edited()
	return nil
}

// ApplyVoucher replaces the active discount with a voucher. Invalid input
// leaves the prior selection unchanged.
func (m *Manager) ApplyVoucher(code, amount string) error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	sel, err := pricing.NewVoucher(code, amount)
	if err != nil {
		return err
	}
	m.discount = sel
	m.edited()
	return nil
}

// RemoveDiscount resets the selection to None.
func (m *Manager) RemoveDiscount() error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	m.discount = pricing.None{}
	m.edited()
	return nil
}

// Checkout validates the order and moves it to payment method selection.
func (m *Manager) Checkout() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.phase == PhaseAwaitingPayment {
		return nil
	}
	m.transition(PhaseAwaitingCheckout)
	m.transition(PhaseAwaitingPayment)
	return nil
}

// CancelPayment returns from payment method selection to editing.
func (m *Manager) CancelPayment() error {
	if m.pending != nil {
		return ErrPaymentPending
	}
	if m.phase == PhaseAwaitingPayment || m.phase == PhaseAwaitingCheckout {
		m.transition(PhaseBuilding)
	}
	return nil
}

// BeginPayment records an attempt to write p to the ledger. The order must
// be awaiting payment and stays frozen until the attempt is completed,
// aborted or the cart is cleared.
func (m *Manager) BeginPayment(p PendingPayment) error {
	if m.phase != PhaseAwaitingPayment {
		return fmt.Errorf("begin payment in phase %s: %w", m.phase, ErrInvalidInput)
	}
	if strings.TrimSpace(p.BatchID) == "" {
		return fmt.Errorf("batch id required: %w", ErrInvalidInput)
	}
	if m.pending != nil {
		return ErrPaymentPending
	}
	m.pending = &p
	return nil
}

// AbortPayment forgets an attempt that is known not to have been recorded.
func (m *Manager) AbortPayment() {
	m.pending = nil
}

// Validate reports the first missing precondition for payment.
func (m *Manager) Validate() error {
	switch {
	case len(m.items) == 0:
		return ErrCartEmpty
	case m.customer == nil:
		return ErrCustomerRequired
	case m.staff == nil:
		return ErrStaffRequired
	}
	return nil
}

// Complete records a successful payment and resets the order.
func (m *Manager) Complete() {
	m.transition(PhaseCompleted)
	m.reset()
}

// Clear discards the order. Customer and discount are always reset; staff is
// reset only for operators allowed to reassign it.
func (m *Manager) Clear() {
	if m.phase != PhaseEmpty {
		m.transition(PhaseCancelled)
	}
	m.reset()
}

// Lines returns the per-line discount breakdown under the active selection.
func (m *Manager) Lines() []pricing.LineDiscount {
	return pricing.Lines(m.pricingItems(), m.discount)
}

// Summary returns subtotal, discount and total under the active selection.
func (m *Manager) Summary() pricing.Summary {
	return pricing.Compute(m.pricingItems(), m.discount)
}

// Snapshot is an immutable view of an order with its computed pricing.
type Snapshot struct {
	Order
	Label   string                 `json:"discountLabel,omitempty"`
	Lines   []pricing.LineDiscount `json:"lines"`
	Summary pricing.Summary        `json:"summary"`
}

// Snapshot returns a copy of the order with line discounts and totals.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Order:   m.Order(),
		Label:   pricing.Describe(m.discount),
		Lines:   m.Lines(),
		Summary: m.Summary(),
	}
}

// Order returns the persisted form of the cart.
func (m *Manager) Order() Order {
	return Order{
		Items:    m.Items(),
		Customer: cloneParty(m.customer),
		Staff:    cloneParty(m.staff),
		Discount: pricing.Encode(m.discount),
		Phase:    m.phase,
		Pending:  clonePending(m.pending),
	}
}

func (m *Manager) pricingItems() []pricing.Item {
	items := make([]pricing.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, pricing.Item{ID: it.ID, Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return items
}

func (m *Manager) reset() {
	m.items = nil
	m.discount = pricing.None{}
	m.customer = nil
	m.pending = nil
	m.resetStaff()
	m.transition(PhaseEmpty)
}

func (m *Manager) resetStaff() {
	if m.operator.CanReassignStaff {
		m.staff = nil
		return
	}
	if m.operator.ID != "" {
		m.staff = &Party{ID: m.operator.ID, Name: m.operator.Name}
	}
}

// edited re-derives the phase after any change to the order's contents.
func (m *Manager) edited() {
	switch {
	case len(m.items) == 0:
		m.transition(PhaseEmpty)
	default:
		m.transition(PhaseBuilding)
	}
}

func (m *Manager) transition(to Phase) {
	from := m.phase
	if from == to {
		return
	}
	m.phase = to
	if m.OnTransition != nil {
		m.OnTransition(from, to)
	}
}

func (m *Manager) indexOf(id string) int {
	for i, it := range m.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func cloneParty(p *Party) *Party {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func clonePending(p *PendingPayment) *PendingPayment {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
