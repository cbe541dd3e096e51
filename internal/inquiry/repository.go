package inquiry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sourcing/internal/platform/db"
	"github.com/odyssey-erp/sourcing/internal/reconcile"
	"github.com/odyssey-erp/sourcing/internal/refchain"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchSnapshot reads the inquiry, its items, every supplier response and
// active promotion touching those items (directly or through a reference
// change), and the reference-event log — all inside one repeatable-read
// transaction so reconciliation never sees torn data.
func (r *Repository) FetchSnapshot(ctx context.Context, inquiryID int64) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, number, status, note, created_at, updated_at FROM inquiries WHERE id = $1`, inquiryID).
			Scan(&snap.Inquiry.ID, &snap.Inquiry.Number, &snap.Inquiry.Status, &snap.Inquiry.Note, &snap.Inquiry.CreatedAt, &snap.Inquiry.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if snap.Items, err = fetchInquiryItems(ctx, tx, inquiryID); err != nil {
			return err
		}
		if snap.Responses, err = fetchResponses(ctx, tx, inquiryID); err != nil {
			return err
		}
		if snap.Promotions, err = fetchPromotions(ctx, tx, inquiryID); err != nil {
			return err
		}
		if snap.ReferenceEvents, err = fetchReferenceEvents(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	seen := make(map[int64]bool)
	for _, line := range snap.Responses {
		if !seen[line.SupplierID] {
			seen[line.SupplierID] = true
			snap.SupplierIDs = append(snap.SupplierIDs, line.SupplierID)
		}
	}
	for _, p := range snap.Promotions {
		if !seen[p.SupplierID] {
			seen[p.SupplierID] = true
			snap.SupplierIDs = append(snap.SupplierIDs, p.SupplierID)
		}
	}
	return snap, nil
}

func fetchInquiryItems(ctx context.Context, tx pgx.Tx, inquiryID int64) ([]reconcile.InquiryItem, error) {
	rows, err := tx.Query(ctx, `SELECT ii.id, ii.item_id, ii.requested_qty, ii.excel_row_index, ii.retail_price
FROM inquiry_items ii WHERE ii.inquiry_id = $1 AND ii.deleted_at IS NULL ORDER BY ii.excel_row_index`, inquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []reconcile.InquiryItem
	for rows.Next() {
		var it reconcile.InquiryItem
		if err := rows.Scan(&it.InquiryItemID, &it.ItemID, &it.RequestedQty, &it.ExcelRowIndex, &it.RetailPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// fetchResponses pulls every response line whose item id is an inquiry item
// or is linked to one by the current reference-change log, in either
// direction. Classification of the match happens in the normalizer.
func fetchResponses(ctx context.Context, tx pgx.Tx, inquiryID int64) ([]reconcile.SupplierResponseLine, error) {
	rows, err := tx.Query(ctx, `
WITH inquiry_ids AS (
	SELECT item_id FROM inquiry_items WHERE inquiry_id = $1 AND deleted_at IS NULL
), linked_ids AS (
	SELECT item_id FROM inquiry_ids
	UNION
	SELECT rc.original_item_id FROM reference_changes rc JOIN inquiry_ids i ON rc.new_reference_id = i.item_id
	UNION
	SELECT rc.new_reference_id FROM reference_changes rc JOIN inquiry_ids i ON rc.original_item_id = i.item_id
)
SELECT sr.supplier_id, sr.item_id, sr.price_quoted, sr.response_date, sr.status,
       sr.is_promotion, COALESCE(sr.promotion_id, 0), COALESCE(sr.promotion_name, ''), COALESCE(sr.notes, '')
FROM supplier_responses sr
WHERE sr.item_id IN (SELECT item_id FROM linked_ids)
ORDER BY sr.response_date, sr.supplier_id, sr.id`, inquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []reconcile.SupplierResponseLine
	for rows.Next() {
		var l reconcile.SupplierResponseLine
		if err := rows.Scan(&l.SupplierID, &l.ItemID, &l.PriceQuoted, &l.ResponseDate, &l.Status, &l.IsPromotion, &l.PromotionID, &l.PromotionName, &l.Notes); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func fetchPromotions(ctx context.Context, tx pgx.Tx, inquiryID int64) ([]reconcile.PromotionItem, error) {
	rows, err := tx.Query(ctx, `
SELECT pi.promotion_id, p.name, p.supplier_id, pi.item_id, pi.promotion_price,
       COALESCE(p.start_date, 'epoch'::timestamptz), COALESCE(p.end_date, 'infinity'::timestamptz), p.is_active
FROM promotion_items pi
JOIN promotions p ON p.id = pi.promotion_id
WHERE p.is_active AND pi.item_id IN (SELECT item_id FROM inquiry_items WHERE inquiry_id = $1 AND deleted_at IS NULL)`, inquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var promos []reconcile.PromotionItem
	for rows.Next() {
		var p reconcile.PromotionItem
		if err := rows.Scan(&p.PromotionID, &p.PromotionName, &p.SupplierID, &p.ItemID, &p.PromotionPrice, &p.StartDate, &p.EndDate, &p.IsActive); err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func fetchReferenceEvents(ctx context.Context, tx pgx.Tx) ([]refchain.ReferenceChangeEvent, error) {
	rows, err := tx.Query(ctx, `SELECT original_item_id, new_reference_id, change_date, source, COALESCE(supplier_id, 0), COALESCE(notes, '')
FROM reference_changes ORDER BY change_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []refchain.ReferenceChangeEvent
	for rows.Next() {
		var ev refchain.ReferenceChangeEvent
		var source string
		if err := rows.Scan(&ev.OriginalItemID, &ev.NewReferenceID, &ev.ChangeDate, &source, &ev.SupplierID, &ev.Notes); err != nil {
			return nil, err
		}
		ev.Source = refchain.Source(source)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListInquiries returns one page of inquiries, newest activity first, plus
// the total row count for pagination.
func (r *Repository) ListInquiries(ctx context.Context, limit, offset int) ([]Inquiry, int, error) {
	var (
		out   []Inquiry
		total int
	)
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM inquiries WHERE deleted_at IS NULL`).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, number, status, note, created_at, updated_at
FROM inquiries WHERE deleted_at IS NULL ORDER BY updated_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var inq Inquiry
			if err := rows.Scan(&inq.ID, &inq.Number, &inq.Status, &inq.Note, &inq.CreatedAt, &inq.UpdatedAt); err != nil {
				return err
			}
			out = append(out, inq)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AppendReferenceEvent inserts one event into the append-only log.
func (r *Repository) AppendReferenceEvent(ctx context.Context, ev refchain.ReferenceChangeEvent) error {
	var supplierID any
	if ev.SupplierID != 0 {
		supplierID = ev.SupplierID
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO reference_changes (original_item_id, new_reference_id, change_date, source, supplier_id, notes)
VALUES ($1, $2, $3, $4, $5, $6)`, ev.OriginalItemID, ev.NewReferenceID, ev.ChangeDate, string(ev.Source), supplierID, ev.Notes)
	if err != nil {
		if violatesConstraint(err, "uq_reference_changes") {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// violatesConstraint reports whether err is a postgres error raised by the
// named constraint. pgx wraps driver errors, so unwrap rather than assert.
func violatesConstraint(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == constraint
}
