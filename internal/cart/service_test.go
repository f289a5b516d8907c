package cart_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/cart"
	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/lock"
	"github.com/noah-isme/salon-pos/internal/notify"
	"github.com/noah-isme/salon-pos/internal/pricing"
)

func newService(store cart.Store) *cart.Service {
	products := map[string]cart.Product{haircut.ID: haircut, colour.ID: colour}
	people := map[string]cart.Party{"c-1": *jane, "s-1": {ID: "s-1", Name: "Amy"}, "s-2": {ID: "s-2", Name: "Bo"}}
	lookup := func(_ context.Context, id string) (cart.Party, error) {
		p, ok := people[id]
		if !ok {
			return cart.Party{}, fmt.Errorf("person %s: %w", id, common.ErrNotFound)
		}
		return p, nil
	}
	return &cart.Service{
		Store:  store,
		Locker: lock.NewLocalLocker(),
		LookupProduct: func(_ context.Context, id string) (cart.Product, error) {
			p, ok := products[id]
			if !ok {
				return cart.Product{}, fmt.Errorf("service %s: %w", id, common.ErrNotFound)
			}
			return p, nil
		},
		LookupCustomer: lookup,
		LookupStaff:    lookup,
	}
}

func TestServiceFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService(cart.NewMemoryStore(time.Hour))

	view, err := svc.Create(ctx, stylist)
	require.NoError(t, err)
	require.Equal(t, "s-2", view.Staff.ID)

	_, err = svc.AddItem(ctx, stylist, view.ID, "svc-cut")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, stylist, view.ID, "svc-missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.Checkout(ctx, stylist, view.ID)
	require.ErrorIs(t, err, cart.ErrCustomerRequired)

	_, err = svc.SelectCustomer(ctx, stylist, view.ID, "c-1")
	require.NoError(t, err)
	_, err = svc.SelectStaff(ctx, stylist, view.ID, "s-1")
	require.ErrorIs(t, err, cart.ErrStaffLocked)

	got, err := svc.Checkout(ctx, stylist, view.ID)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseAwaitingPayment, got.Phase)

	_, err = svc.Get(ctx, common.Operator{ID: "s-9"}, view.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)

	got, err = svc.Get(ctx, manager, view.ID)
	require.NoError(t, err)
	require.Equal(t, cart.PhaseAwaitingPayment, got.Phase)
}

func TestServiceFailedMutationIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	svc := newService(cart.NewMemoryStore(0))
	view, err := svc.Create(ctx, manager)
	require.NoError(t, err)
	_, err = svc.ApplyPercentage(ctx, manager, view.ID, 10)
	require.NoError(t, err)

	_, err = svc.ApplyPercentage(ctx, manager, view.ID, 7)
	require.Error(t, err)
	got, err := svc.Get(ctx, manager, view.ID)
	require.NoError(t, err)
	require.Equal(t, "with 10% discount", got.Label)
}

func TestApplyVoucherConfirmsToOperator(t *testing.T) {
	ctx := context.Background()
	svc := newService(cart.NewMemoryStore(time.Hour))
	rec := &notify.Recorder{}
	svc.Notify = rec
	view, err := svc.Create(ctx, manager)
	require.NoError(t, err)

	_, err = svc.ApplyPercentage(ctx, manager, view.ID, 10)
	require.NoError(t, err)
	require.Empty(t, rec.Messages())

	_, err = svc.ApplyVoucher(ctx, manager, view.ID, "SPRING", "12.5")
	require.NoError(t, err)
	last, ok := rec.Last()
	require.True(t, ok)
	require.Equal(t, notify.LevelSuccess, last.Level)
	require.Equal(t, "Voucher SPRING applied for £12.50", last.Text)

	_, err = svc.ApplyVoucher(ctx, manager, view.ID, "SPRING", "-1")
	require.ErrorIs(t, err, pricing.ErrInvalidVoucherAmount)
	last, _ = rec.Last()
	require.Equal(t, notify.LevelError, last.Level)

	svc.Currency = "€"
	require.Equal(t, "Voucher X applied for €5.00", svc.DiscountMessage(pricing.Record{Kind: pricing.KindVoucher, Code: "X", Amount: "5"}))
	require.Empty(t, svc.DiscountMessage(pricing.Record{Kind: pricing.KindPercentage, Tier: 10}))
}

func TestMemoryStoreExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := cart.NewMemoryStore(time.Hour)
	store.Now = func() time.Time { return now }
	require.NoError(t, store.Put(context.Background(), cart.Record{ID: "a", UpdatedAt: now}))

	_, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = store.Get(context.Background(), "a")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	svc := newService(cart.NewRedisStore(client, time.Hour))
	view, err := svc.Create(ctx, manager)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, manager, view.ID, "svc-cut")
	require.NoError(t, err)
	_, err = svc.ApplyVoucher(ctx, manager, view.ID, "SPRING", "12.50")
	require.NoError(t, err)

	got, err := svc.Get(ctx, manager, view.ID)
	require.NoError(t, err)
	require.Equal(t, "with voucher SPRING", got.Label)
	require.Equal(t, "37.5", got.Summary.Total.String())

	mr.FastForward(2 * time.Hour)
	_, err = svc.Get(ctx, manager, view.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestHandlers(t *testing.T) {
	svc := newService(cart.NewMemoryStore(time.Hour))
	h := &cart.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithOperator(req.Context(), stylist)))
		})
	})
	r.Route("/carts", func(r chi.Router) { h.Routes(r) })

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/carts/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data cart.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	base := "/carts/" + created.Data.ID

	require.Equal(t, http.StatusOK, do(http.MethodPost, base+"/items", `{"serviceId":"svc-cut"}`).Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodPost, base+"/items", `{"serviceId":"nope"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, base+"/items", `{}`).Code)

	rec = do(http.MethodPut, base+"/discount", `{"kind":"percentage","tier":15}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rec = do(http.MethodPut, base+"/discount", `{"kind":"voucher","code":"WELCOME","amount":"3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var applied struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	require.Equal(t, "Voucher WELCOME applied for £3.00", applied.Message)

	rec = do(http.MethodPut, base+"/discount", `{"kind":"percentage","tier":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), `"message"`)
	require.Equal(t, http.StatusForbidden, do(http.MethodPut, base+"/staff", `{"staffId":"s-1"}`).Code)

	rec = do(http.MethodPost, base+"/checkout", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "customer required")

	require.Equal(t, http.StatusOK, do(http.MethodPut, base+"/customer", `{"customerId":"c-1"}`).Code)
	rec = do(http.MethodPost, base+"/checkout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var checked struct {
		Data cart.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checked))
	require.Equal(t, cart.PhaseAwaitingPayment, checked.Data.Phase)
	require.Equal(t, "45", checked.Data.Summary.Total.String())

	require.Equal(t, http.StatusOK, do(http.MethodPost, base+"/checkout/cancel", "").Code)
	require.Equal(t, http.StatusOK, do(http.MethodDelete, base, "").Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/carts/not-a-uuid", "").Code)
}
