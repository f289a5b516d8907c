package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/ledger"
)

func entry(id, batch string, at time.Time, gross, discount string) ledger.Entry {
	return ledger.Entry{
		ID:             id,
		BatchID:        batch,
		Timestamp:      at,
		CustomerID:     "c1",
		CustomerName:   "Jane",
		StaffID:        "s1",
		StaffName:      "Amy",
		ServiceName:    "Facial",
		Category:       "facial",
		GrossAmount:    decimal.RequireFromString(gross),
		DiscountAmount: decimal.RequireFromString(discount),
		PaymentMethod:  "Card",
	}
}

func ids(entries []ledger.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

type repoFactory func(t *testing.T) ledger.Repository

func factories() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(t *testing.T) ledger.Repository { return ledger.NewMemoryStore() },
		"file": func(t *testing.T) ledger.Repository {
			store, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "ledger.jsonl"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func TestQueryIsBoundaryInclusiveAndOrdered(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	dayEnd := day.Add(24*time.Hour - time.Millisecond)
	for name, newRepo := range factories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			require.NoError(t, repo.Append(ctx, []ledger.Entry{
				entry("late", "TX1", dayEnd, "40", "0"),
				entry("before", "TX1", day.Add(-time.Millisecond), "10", "0"),
			}))
			require.NoError(t, repo.Append(ctx, []ledger.Entry{
				entry("start", "TX2", day, "20", "2"),
				entry("after", "TX2", dayEnd.Add(time.Millisecond), "30", "0"),
			}))

			got, err := repo.Query(ctx, day, dayEnd)
			require.NoError(t, err)
			require.Equal(t, []string{"late", "start"}, ids(got))
		})
	}
}

func TestAppendRejectsWholeBatch(t *testing.T) {
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	for name, newRepo := range factories() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			err := repo.Append(ctx, []ledger.Entry{
				entry("ok", "TX1", at, "10", "1"),
				entry("bad", "TX1", at, "10", "11"),
			})
			require.ErrorIs(t, err, ledger.ErrInvalidEntry)

			got, err := repo.Query(ctx, at.Add(-time.Hour), at.Add(time.Hour))
			require.NoError(t, err)
			require.Empty(t, got)

			require.NoError(t, repo.Append(ctx, []ledger.Entry{entry("ok", "TX1", at, "10", "1")}))
			err = repo.Append(ctx, []ledger.Entry{
				entry("new", "TX2", at, "5", "0"),
				entry("ok", "TX2", at, "5", "0"),
			})
			require.ErrorIs(t, err, ledger.ErrDuplicateEntry)
			got, err = repo.Query(ctx, at.Add(-time.Hour), at.Add(time.Hour))
			require.NoError(t, err)
			require.Equal(t, []string{"ok"}, ids(got))
		})
	}
}

func TestFileStoreReloadsAndDropsTornWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	store, err := ledger.OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), []ledger.Entry{
		entry("a", "TX1", at, "20", "2"),
		entry("b", "TX1", at, "30", "3"),
	}))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"entryId":"torn","batchId":"TX2"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := ledger.OpenFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Query(context.Background(), at, at)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(got))
	require.True(t, got[1].DiscountAmount.Equal(decimal.NewFromInt(3)))

	require.NoError(t, reopened.Append(context.Background(), []ledger.Entry{entry("c", "TX3", at, "1", "0")}))
	got, err = reopened.Query(context.Background(), at, at)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestBatchesGroupInOrder(t *testing.T) {
	at := time.Now()
	batches := ledger.Batches([]ledger.Entry{
		entry("a", "TX1", at, "20", "2"),
		entry("b", "TX2", at, "5", "0"),
		entry("c", "TX1", at, "30", "3"),
	})
	require.Len(t, batches, 2)
	require.Equal(t, "TX1", batches[0].ID)
	require.Equal(t, []string{"a", "c"}, ids(batches[0].Entries))
	require.True(t, batches[0].Net().Equal(decimal.NewFromInt(45)))
}

func TestEntryValidate(t *testing.T) {
	at := time.Now()
	require.NoError(t, entry("a", "TX", at, "10", "10").Validate())
	require.ErrorIs(t, entry("", "TX", at, "10", "0").Validate(), ledger.ErrInvalidEntry)
	require.ErrorIs(t, entry("a", "", at, "10", "0").Validate(), ledger.ErrInvalidEntry)
	require.ErrorIs(t, entry("a", "TX", time.Time{}, "10", "0").Validate(), ledger.ErrInvalidEntry)
	require.ErrorIs(t, entry("a", "TX", at, "-1", "0").Validate(), ledger.ErrInvalidEntry)
	require.ErrorIs(t, entry("a", "TX", at, "10", "-1").Validate(), ledger.ErrInvalidEntry)
}
