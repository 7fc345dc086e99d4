package payment

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

const (
	qRecordLock   = "SELECT pg_advisory_xact_lock(hashtext($1))"
	qRecordGet    = "SELECT document FROM payment_records WHERE external_reference = $1"
	qRecordUpsert = `INSERT INTO payment_records
	(external_reference, payment_id, status, payment_method_id, amount, processing_completed_at, date_last_updated, document)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (external_reference) DO UPDATE SET
	payment_id = EXCLUDED.payment_id, status = EXCLUDED.status, payment_method_id = EXCLUDED.payment_method_id,
	amount = EXCLUDED.amount, processing_completed_at = EXCLUDED.processing_completed_at,
	date_last_updated = EXCLUDED.date_last_updated, document = EXCLUDED.document`
	qRecordList   = "SELECT external_reference, document FROM payment_records ORDER BY date_last_updated DESC, external_reference ASC"
	qRecordDelete = "DELETE FROM payment_records WHERE external_reference = $1"
	qRecordClear  = "DELETE FROM payment_records"
	qRecordStats  = "SELECT status, payment_method_id, COUNT(*), COALESCE(SUM(amount), 0)::TEXT FROM payment_records GROUP BY status, payment_method_id"
)

// SQLRepository stores records in Postgres. Upserts serialize per reference
// with a transaction-scoped advisory lock, so several processes can share the table.
type SQLRepository struct {
	db     db.Client
	logger *observability.Logger
	now    func() time.Time
}

func NewSQLRepository(dbClient db.Client, logger *observability.Logger) *SQLRepository {
	return &SQLRepository{db: dbClient, logger: logger, now: time.Now}
}

func (r *SQLRepository) Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error) {
	if rec == nil {
		return nil, errors.Join(db.ErrInvalid, errors.New("nil record"))
	}
	ref := rec.ExternalReference
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}

	var merged *PaymentRecord
	err := r.db.InTx(ctx, func(ctx context.Context, tx db.Client) error {
		if _, err := tx.Exec(ctx, qRecordLock, ref); err != nil {
			return err
		}
		prev, err := r.getWith(ctx, tx, ref)
		switch {
		case err == nil:
		case db.IsNotFound(err), db.IsInvalid(err):
			prev = nil
		default:
			return err
		}

		merged = Merge(prev, rec)
		var prevUpdated time.Time
		if prev != nil {
			prevUpdated = prev.DateLastUpdated
		}
		merged.DateLastUpdated = nextLastUpdated(r.now().UTC(), prevUpdated)

		doc, err := json.Marshal(merged)
		if err != nil {
			return errors.Join(db.ErrInternal, err)
		}
		var amount any
		if merged.Amount != nil {
			amount = merged.Amount.String()
		}
		var completedAt any
		if merged.ProcessingState.ProcessingCompletedAt != nil {
			completedAt = *merged.ProcessingState.ProcessingCompletedAt
		}
		_, err = tx.Exec(ctx, qRecordUpsert,
			ref,
			merged.PaymentID,
			string(merged.Status),
			merged.PaymentMethodID,
			amount,
			completedAt,
			merged.DateLastUpdated,
			doc,
		)
		return err
	})
	if err != nil {
		r.logger.Error("upsert record", "layer", "repo", "component", "payment", "repo", "SQLRepository", "method", "Upsert", "external_reference", ref, "err", err)
		return nil, err
	}
	return merged, nil
}

func (r *SQLRepository) Get(ctx context.Context, ref string) (*PaymentRecord, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	rec, err := r.getWith(ctx, r.db, ref)
	if err != nil && !db.IsNotFound(err) {
		r.logger.Error("get record", "layer", "repo", "component", "payment", "repo", "SQLRepository", "method", "Get", "external_reference", ref, "err", err)
	}
	return rec, err
}

func (r *SQLRepository) getWith(ctx context.Context, c db.Client, ref string) (*PaymentRecord, error) {
	row, err := c.QueryRow(ctx, qRecordGet, ref)
	if err != nil {
		return nil, err
	}
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	return decodeRecord(ref, doc)
}

func (r *SQLRepository) ListAll(ctx context.Context) (*Listing, error) {
	rows, err := r.db.Query(ctx, qRecordList)
	if err != nil {
		r.logger.Error("list records", "layer", "repo", "component", "payment", "repo", "SQLRepository", "method", "ListAll", "err", err)
		return nil, err
	}
	defer rows.Close()

	out := &Listing{Records: []*PaymentRecord{}, Invalid: []InvalidSlot{}}
	for rows.Next() {
		var ref string
		var doc []byte
		if err := rows.Scan(&ref, &doc); err != nil {
			return nil, errors.Join(db.ErrInternal, err)
		}
		rec, err := decodeRecord(ref, doc)
		if err != nil {
			out.Invalid = append(out.Invalid, InvalidSlot{Reference: ref, Reason: err.Error()})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(db.ErrInternal, err)
	}
	return out, nil
}

func (r *SQLRepository) Delete(ctx context.Context, ref string) (bool, error) {
	if err := ValidateReference(ref); err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, qRecordDelete, ref)
	if err != nil {
		r.logger.Error("delete record", "layer", "repo", "component", "payment", "repo", "SQLRepository", "method", "Delete", "external_reference", ref, "err", err)
		return false, err
	}
	return n > 0, nil
}

func (r *SQLRepository) Clear(ctx context.Context) (int, error) {
	n, err := r.db.Exec(ctx, qRecordClear)
	if err != nil {
		r.logger.Error("clear records", "layer", "repo", "component", "payment", "repo", "SQLRepository", "method", "Clear", "err", err)
		return 0, err
	}
	return int(n), nil
}

func (r *SQLRepository) Stats(ctx context.Context) (Stats, error) {
	rows, err := r.db.Query(ctx, qRecordStats)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	st := ComputeStats(nil, r.now())
	for rows.Next() {
		var status, method, sum string
		var count int
		if err := rows.Scan(&status, &method, &count, &sum); err != nil {
			return Stats{}, errors.Join(db.ErrInternal, err)
		}
		amount, err := decimal.NewFromString(sum)
		if err != nil {
			return Stats{}, errors.Join(db.ErrInternal, err)
		}
		st.Count += count
		st.CountByStatus[status] += count
		if method != "" {
			st.CountByPaymentMethod[method] += count
		}
		st.TotalAmount = st.TotalAmount.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, errors.Join(db.ErrInternal, err)
	}
	return st, nil
}

// Ping reports whether the backing database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
