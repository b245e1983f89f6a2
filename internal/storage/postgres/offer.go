package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gozy-app/gozy/internal/domain/offer"
)

// OfferRepository reads and writes the offers table.
type OfferRepository struct {
	db DB
}

// NewOfferRepository returns an OfferRepository that uses the given connection pool.
func NewOfferRepository(db DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// List returns the active offers in catalog order.
func (r *OfferRepository) List(ctx context.Context) ([]offer.Offer, error) {
	rows, err := r.db.Query(ctx, `
SELECT code, label, kind, value, eligible_methods, min_amount, cap_amount, stackable, one_time
FROM offers
WHERE active
ORDER BY position, code`)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}

	offers, err := pgx.CollectRows(rows, scanOffer)
	if err != nil {
		return nil, fmt.Errorf("scanning offers: %w", err)
	}
	return offers, nil
}

// Upsert inserts or replaces offers in a single transaction. The slice order
// becomes the catalog order.
func (r *OfferRepository) Upsert(ctx context.Context, offers []offer.Offer) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for i, o := range offers {
			methods := make([]string, len(o.EligibleMethods))
			for j, m := range o.EligibleMethods {
				methods[j] = string(m)
			}
			b.Queue(`
INSERT INTO offers (code, label, kind, value, eligible_methods, min_amount, cap_amount, stackable, one_time, position, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
ON CONFLICT (code) DO UPDATE SET
    label = EXCLUDED.label,
    kind = EXCLUDED.kind,
    value = EXCLUDED.value,
    eligible_methods = EXCLUDED.eligible_methods,
    min_amount = EXCLUDED.min_amount,
    cap_amount = EXCLUDED.cap_amount,
    stackable = EXCLUDED.stackable,
    one_time = EXCLUDED.one_time,
    position = EXCLUDED.position,
    active = true,
    updated_at = now()`,
				o.Code, o.Label, string(o.Kind), o.Value, methods,
				o.MinAmount, o.CapAmount, o.Stackable, o.OneTime, i,
			)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("upserting offers: %w", err)
		}
		return nil
	})
}

// Deactivate hides every offer whose code is not in keep.
func (r *OfferRepository) Deactivate(ctx context.Context, keep []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE offers SET active = false, updated_at = now() WHERE active AND NOT (code = ANY($1))`, keep)
	if err != nil {
		return 0, fmt.Errorf("deactivating offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var (
		o       offer.Offer
		kind    string
		methods []string
		value   decimal.Decimal
	)
	if err := row.Scan(
		&o.Code, &o.Label, &kind, &value, &methods,
		&o.MinAmount, &o.CapAmount, &o.Stackable, &o.OneTime,
	); err != nil {
		return offer.Offer{}, err
	}
	o.Kind = offer.Kind(kind)
	o.Value = value
	if len(methods) > 0 {
		o.EligibleMethods = make([]offer.PaymentMethod, len(methods))
		for i, m := range methods {
			o.EligibleMethods[i] = offer.PaymentMethod(m)
		}
	}
	return o, nil
}
