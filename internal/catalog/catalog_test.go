package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/catalog"
	"github.com/noah-isme/salon-pos/internal/common"
)

const seed = `
categories:
  - id: facial
    label: Facials
  - id: massage
    label: Massage
services:
  - id: f-1
    name: Deep Cleanse Facial
    category: facial
    price: "45.00"
    durationMinutes: 60
  - id: f-2
    name: Express Facial
    category: facial
    price: "25"
  - id: m-1
    name: Hot Stone Massage
    category: massage
    price: "60.50"
  - id: m-2
    name: Retired Massage
    category: massage
    price: "10"
    active: false
`

func load(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(seed))
	require.NoError(t, err)
	return c
}

func TestCatalogLookups(t *testing.T) {
	c := load(t)
	require.Len(t, c.Categories(), 2)
	require.Equal(t, "Massage", c.Label("massage"))
	require.Equal(t, "other", c.Label("other"))

	facials, err := c.ServicesByCategory("facial")
	require.NoError(t, err)
	require.Len(t, facials, 2)

	massages, err := c.ServicesByCategory("massage")
	require.NoError(t, err)
	require.Len(t, massages, 1)

	_, err = c.ServicesByCategory("nails")
	require.ErrorIs(t, err, catalog.ErrCategoryNotFound)

	svc, err := c.Service(context.Background(), "m-1")
	require.NoError(t, err)
	require.Equal(t, "60.5", svc.Price.String())

	_, err = c.Service(context.Background(), "m-2")
	require.ErrorIs(t, err, catalog.ErrServiceNotFound)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSearchIsCaseInsensitiveAcrossCategories(t *testing.T) {
	c := load(t)
	got := c.Search("FACIAL")
	require.Len(t, got, 2)
	require.Equal(t, "Deep Cleanse Facial", got[0].Name)

	require.Len(t, c.Search("massage"), 1)
	require.Len(t, c.Search(""), 3)
	require.Empty(t, c.Search("pedicure"))
}

func TestParseRejectsInvalidSeeds(t *testing.T) {
	_, err := catalog.Parse([]byte("services:\n  - id: a\n    name: A\n    price: abc\n"))
	require.Error(t, err)
	_, err = catalog.Parse([]byte("services:\n  - id: a\n    name: A\n    price: \"-1\"\n"))
	require.Error(t, err)
	_, err = catalog.Parse([]byte("services:\n  - id: a\n    name: A\n    category: nails\n    price: \"1\"\n"))
	require.Error(t, err)
}

func TestHandlers(t *testing.T) {
	h := catalog.NewHandler(catalog.HandlerConfig{Catalog: load(t)})
	r := chi.NewRouter()
	h.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories/facial/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []struct {
			ID    string `json:"id"`
			Price string `json:"price"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "45", body.Data[0].Price)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories/nails/services", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services?q=stone", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Hot Stone Massage")
}
