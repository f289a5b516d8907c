package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/cart"
	"github.com/noah-isme/salon-pos/internal/checkout"
	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/ledger"
	"github.com/noah-isme/salon-pos/internal/lock"
	"github.com/noah-isme/salon-pos/internal/notify"
	"github.com/noah-isme/salon-pos/internal/pricing"
	"github.com/noah-isme/salon-pos/internal/reporting"
)

var (
	amy  = common.Operator{ID: "s-1", Name: "Amy"}
	paid = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
)

type failingLedger struct{ ledger.Repository }

func (failingLedger) Append(context.Context, []ledger.Entry) error {
	return errors.New("disk full")
}

// unreliableCarts fails the next failPuts saves.
type unreliableCarts struct {
	cart.Store
	failPuts atomic.Int32
}

func (s *unreliableCarts) Put(ctx context.Context, rec cart.Record) error {
	if s.failPuts.Add(-1) >= 0 {
		return errors.New("redis timeout")
	}
	s.failPuts.Store(0)
	return s.Store.Put(ctx, rec)
}

// hookedLedger runs afterAppend once a batch has been committed.
type hookedLedger struct {
	ledger.Repository
	afterAppend func()
}

func (l hookedLedger) Append(ctx context.Context, entries []ledger.Entry) error {
	if err := l.Repository.Append(ctx, entries); err != nil {
		return err
	}
	if l.afterAppend != nil {
		l.afterAppend()
	}
	return nil
}

type fixture struct {
	carts    *cart.Service
	svc      *checkout.Service
	store    *ledger.MemoryStore
	recorder *notify.Recorder
}

func newFixture(t *testing.T, repo ledger.Repository) fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	if repo == nil {
		repo = store
	}
	rec := &notify.Recorder{}
	products := map[string]cart.Product{
		"cut":    {ID: "cut", Name: "Haircut", Price: decimal.RequireFromString("50"), Category: "hair"},
		"colour": {ID: "colour", Name: "Colour", Price: decimal.RequireFromString("30"), Category: "hair"},
	}
	carts := &cart.Service{
		Store:  cart.NewMemoryStore(time.Hour),
		Locker: lock.NewLocalLocker(),
		Notify: rec,
		LookupProduct: func(_ context.Context, id string) (cart.Product, error) {
			p, ok := products[id]
			if !ok {
				return cart.Product{}, common.ErrNotFound
			}
			return p, nil
		},
		LookupCustomer: func(_ context.Context, id string) (cart.Party, error) {
			return cart.Party{ID: id, Name: "Jane"}, nil
		},
	}
	svc := &checkout.Service{
		Carts:  carts,
		Ledger: repo,
		Notify: rec,
		Now:    func() time.Time { return paid },
	}
	return fixture{carts: carts, svc: svc, store: store, recorder: rec}
}

func (f fixture) order(t *testing.T, items ...string) string {
	t.Helper()
	ctx := context.Background()
	view, err := f.carts.Create(ctx, amy)
	require.NoError(t, err)
	for _, id := range items {
		_, err = f.carts.AddItem(ctx, amy, view.ID, id)
		require.NoError(t, err)
	}
	_, err = f.carts.SelectCustomer(ctx, amy, view.ID, "c-1")
	require.NoError(t, err)
	return view.ID
}

func TestPayWithPercentageDiscount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.order(t, "cut", "cut", "colour")
	_, err := f.carts.ApplyPercentage(ctx, amy, id, 10)
	require.NoError(t, err)
	_, err = f.carts.Checkout(ctx, amy, id)
	require.NoError(t, err)

	receipt, err := f.svc.Pay(ctx, amy, id, "card")
	require.NoError(t, err)
	require.Equal(t, checkout.MethodCard, receipt.Method)
	require.Equal(t, "Payment processed via Card with 10% discount for Jane by Amy. Thank you!", receipt.Message)
	require.True(t, receipt.Summary.Total.Equal(decimal.RequireFromString("117")))
	require.Equal(t, cart.PhaseEmpty, receipt.Cart.Phase)
	require.Empty(t, receipt.Cart.Items)
	require.Equal(t, "s-1", receipt.Cart.Staff.ID)

	entries, err := f.store.Query(ctx, paid.Add(-time.Minute), paid.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, receipt.BatchID+"-cut", entries[0].ID)
	require.True(t, entries[0].GrossAmount.Equal(decimal.RequireFromString("100")))
	require.True(t, entries[0].DiscountAmount.Equal(decimal.RequireFromString("10")))
	require.True(t, entries[1].DiscountAmount.Equal(decimal.RequireFromString("3")))
	require.Equal(t, "Card", entries[1].PaymentMethod)
	require.Equal(t, "Jane", entries[1].CustomerName)
	require.Equal(t, "Amy", entries[1].StaffName)
	require.True(t, strings.HasPrefix(receipt.BatchID, "TX"))

	last, ok := f.recorder.Last()
	require.True(t, ok)
	require.Equal(t, notify.LevelSuccess, last.Level)
}

func TestPayVoucherApportionsAcrossLines(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.order(t, "cut", "colour")
	_, err := f.carts.ApplyVoucher(ctx, amy, id, "SPRING", "16")
	require.NoError(t, err)

	receipt, err := f.svc.Pay(ctx, amy, id, "Cash")
	require.NoError(t, err)
	require.Equal(t, "Payment processed via Cash with voucher SPRING for Jane by Amy. Thank you!", receipt.Message)
	total := decimal.Zero
	for _, e := range receipt.Entries {
		total = total.Add(e.DiscountAmount)
	}
	require.True(t, total.Equal(decimal.RequireFromString("16")))
	require.True(t, receipt.Entries[0].DiscountAmount.Equal(decimal.RequireFromString("10")))
}

func TestPayWithoutStaffIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	manager := common.Operator{ID: "m-1", Name: "Max", CanReassignStaff: true}
	view, err := f.carts.Create(ctx, manager)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, manager, view.ID, "cut")
	require.NoError(t, err)
	_, err = f.carts.SelectCustomer(ctx, manager, view.ID, "c-1")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, manager, view.ID, "Card")
	require.ErrorIs(t, err, cart.ErrStaffRequired)
	require.Contains(t, err.Error(), "staff required")
	require.Zero(t, f.store.Len())

	got, err := f.carts.Get(ctx, manager, view.ID)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseBuilding, got.Phase)
	last, ok := f.recorder.Last()
	require.True(t, ok)
	require.Equal(t, notify.LevelError, last.Level)
}

func TestPayLedgerFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, failingLedger{})
	ctx := context.Background()
	id := f.order(t, "cut")
	_, err := f.carts.Checkout(ctx, amy, id)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, amy, id, "Card")
	require.ErrorIs(t, err, checkout.ErrLedgerUnavailable)

	got, err := f.carts.Get(ctx, amy, id)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseAwaitingPayment, got.Phase)
	require.Len(t, got.Items, 1)
	require.Nil(t, got.Pending)
	last, ok := f.recorder.Last()
	require.True(t, ok)
	require.Equal(t, notify.LevelError, last.Level)
	require.Contains(t, last.Text, "try again")

	got, err = f.carts.CancelPayment(ctx, amy, id)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseBuilding, got.Phase)
}

func TestPayRecordsSaleOnceWhenCartSaveFailsAfterCommit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.order(t, "cut", "colour")
	_, err := f.carts.ApplyPercentage(ctx, amy, id, 10)
	require.NoError(t, err)

	carts := &unreliableCarts{Store: f.carts.Store}
	f.carts.Store = carts
	var armed atomic.Bool
	f.svc.Ledger = hookedLedger{Repository: f.store, afterAppend: func() {
		if armed.CompareAndSwap(false, true) {
			carts.failPuts.Store(1)
		}
	}}

	first, err := f.svc.Pay(ctx, amy, id, "Card")
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Len())
	require.Equal(t, cart.PhaseEmpty, first.Cart.Phase)

	stale, err := f.carts.Get(ctx, amy, id)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseAwaitingPayment, stale.Phase)
	require.NotNil(t, stale.Pending)
	require.Equal(t, first.BatchID, stale.Pending.BatchID)

	_, err = f.carts.AddItem(ctx, amy, id, "cut")
	require.ErrorIs(t, err, cart.ErrPaymentPending)
	_, err = f.carts.CancelPayment(ctx, amy, id)
	require.ErrorIs(t, err, cart.ErrPaymentPending)

	retry, err := f.svc.Pay(ctx, amy, id, "Cash")
	require.NoError(t, err)
	require.Equal(t, first.BatchID, retry.BatchID)
	require.Equal(t, checkout.MethodCard, retry.Method)
	require.Equal(t, 2, f.store.Len())
	require.True(t, retry.Summary.Total.Equal(first.Summary.Total))

	done, err := f.carts.Get(ctx, amy, id)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseEmpty, done.Phase)
	require.Nil(t, done.Pending)
}

func TestPayRecordsNothingWhenPendingSaveFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.order(t, "cut")
	_, err := f.carts.Checkout(ctx, amy, id)
	require.NoError(t, err)

	carts := &unreliableCarts{Store: f.carts.Store}
	carts.failPuts.Store(1)
	f.carts.Store = carts

	_, err = f.svc.Pay(ctx, amy, id, "Card")
	require.Error(t, err)
	require.NotErrorIs(t, err, checkout.ErrLedgerUnavailable)
	require.Zero(t, f.store.Len())

	got, err := f.carts.Get(ctx, amy, id)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseAwaitingPayment, got.Phase)
	require.Nil(t, got.Pending)

	_, err = f.svc.Pay(ctx, amy, id, "Card")
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Len())
}

func TestPayInLastMillisecondCountsForThatDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.svc.Now = func() time.Time { return time.Date(2024, 6, 3, 23, 59, 59, 999_500_000, time.UTC) }
	id := f.order(t, "cut")

	receipt, err := f.svc.Pay(ctx, amy, id, "Card")
	require.NoError(t, err)
	require.True(t, receipt.Entries[0].Timestamp.Equal(time.Date(2024, 6, 3, 23, 59, 59, 999_000_000, time.UTC)))

	agg := &reporting.Aggregator{Ledger: f.store, Location: time.UTC}
	ov, err := agg.Overview(ctx, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ov.Periods[0].Prior.Equal(decimal.RequireFromString("50")))
	require.True(t, ov.Periods[1].Current.Equal(decimal.RequireFromString("50")))

	day, err := reporting.DateRange(reporting.Day, receipt.Entries[0].Timestamp)
	require.NoError(t, err)
	drill, err := agg.DrillDown(ctx, day.Start, day.End, "Yesterday")
	require.NoError(t, err)
	require.Len(t, drill.Entries, 1)
}

func TestPayRejectsUnknownMethod(t *testing.T) {
	f := newFixture(t, nil)
	id := f.order(t, "cut")
	_, err := f.svc.Pay(context.Background(), amy, id, "cheque")
	require.ErrorIs(t, err, checkout.ErrInvalidMethod)
}

func TestBatchIDsAreUnique(t *testing.T) {
	var ids checkout.BatchIDs
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := ids.Next(paid)
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Regexp(t, `^TX\d{6}-\d+$`, ids.Next(paid))
}

func TestSuccessMessageWithoutDiscount(t *testing.T) {
	msg := checkout.SuccessMessage(checkout.MethodCash, pricing.None{}, &cart.Party{Name: "Jane"}, &cart.Party{Name: "Amy"})
	require.Equal(t, "Payment processed via Cash for Jane by Amy. Thank you!", msg)
}

func TestPayHandler(t *testing.T) {
	f := newFixture(t, nil)
	id := f.order(t, "cut")
	h := &checkout.Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Post("/carts/{id}/pay", func(w http.ResponseWriter, req *http.Request) {
		h.Pay(w, req.WithContext(common.WithOperator(req.Context(), amy)))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+id+"/pay", strings.NewReader(`{"method":"bitcoin"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+id+"/pay", strings.NewReader(`{"method":"Cash"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data    checkout.Receipt `json:"data"`
		Message string           `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Payment processed via Cash for Jane by Amy. Thank you!", body.Message)
	require.Len(t, body.Data.Entries, 1)

	failing := newFixture(t, failingLedger{})
	id = failing.order(t, "cut")
	h.Svc = failing.svc
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+id+"/pay", strings.NewReader(`{"method":"Cash"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "LEDGER_UNAVAILABLE")
}
