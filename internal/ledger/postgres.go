package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const insertEntrySQL = `INSERT INTO ledger_entries (
	entry_id, batch_id, occurred_at, customer_id, customer_name, staff_id, staff_name,
	service_name, category, gross_amount, discount_amount, payment_method
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12)`

const queryRangeSQL = `SELECT entry_id, batch_id, occurred_at, customer_id, customer_name, staff_id,
	staff_name, service_name, category, gross_amount::text, discount_amount::text, payment_method
FROM ledger_entries
WHERE occurred_at >= $1 AND occurred_at <= $2
ORDER BY seq`

// PostgresStore persists entries in PostgreSQL. Each batch is written inside
// one transaction; the seq column preserves insertion order.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// Append implements Repository.
func (s *PostgresStore) Append(ctx context.Context, entries []Entry) error {
	if s == nil || s.Pool == nil {
		return errors.New("ledger: postgres store not configured")
	}
	if len(entries) == 0 {
		return nil
	}
	if err := ValidateBatch(entries); err != nil {
		return err
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertEntrySQL,
			e.ID, e.BatchID, e.Timestamp.UTC(), e.CustomerID, e.CustomerName, e.StaffID, e.StaffName,
			e.ServiceName, e.Category, e.GrossAmount.String(), e.DiscountAmount.String(), e.PaymentMethod,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return translatePgError(err)
		}
	}
	if err := results.Close(); err != nil {
		return translatePgError(err)
	}
	return tx.Commit(ctx)
}

// Query implements Repository.
func (s *PostgresStore) Query(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("ledger: postgres store not configured")
	}
	rows, err := s.Pool.Query(ctx, queryRangeSQL, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e               Entry
			gross, discount string
		)
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Timestamp, &e.CustomerID, &e.CustomerName, &e.StaffID,
			&e.StaffName, &e.ServiceName, &e.Category, &gross, &discount, &e.PaymentMethod); err != nil {
			return nil, err
		}
		if e.GrossAmount, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("ledger: parse gross of %s: %w", e.ID, err)
		}
		if e.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("ledger: parse discount of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return errors.New("ledger: postgres store not configured")
	}
	return s.Pool.Ping(ctx)
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, pgErr.Detail)
		case "23514":
			return fmt.Errorf("%w: %s", ErrInvalidEntry, pgErr.ConstraintName)
		}
	}
	return err
}
