// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bento/internal/geo"
	"bento/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

// Migrate creates the order tables if they do not exist yet.
func (s *PgStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			courier_id TEXT,
			status TEXT NOT NULL,
			status_version INT NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			delivery_method TEXT NOT NULL,
			items JSONB NOT NULL,
			subtotal BIGINT NOT NULL,
			tax BIGINT NOT NULL,
			delivery_fee BIGINT NOT NULL,
			discount BIGINT NOT NULL,
			total BIGINT NOT NULL,
			currency TEXT NOT NULL,
			pickup_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			pickup_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			delivery_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			delivery_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			pickup_address TEXT NOT NULL DEFAULT '',
			pickup_code TEXT,
			pickup_code_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS order_status_events (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id);
		CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders (seller_id);
		CREATE INDEX IF NOT EXISTS idx_order_status_events_order ON order_status_events (order_id);
	`)
	return err
}

func (s *PgStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, buyer_id, seller_id, courier_id, status, status_version,
			payment_status, payment_method, delivery_method, items,
			subtotal, tax, delivery_fee, discount, total, currency,
			pickup_lng, pickup_lat, delivery_lng, delivery_lat,
			pickup_address, pickup_code, pickup_code_expires_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23,
			$24, $25
		)`,
		string(o.ID),
		string(o.BuyerID),
		string(o.SellerID),
		idPtr(o.CourierID),
		string(o.Status),
		o.StatusVersion,
		string(o.PaymentStatus),
		string(o.PaymentMethod),
		string(o.DeliveryMethod),
		items,
		o.Subtotal.Amount, o.Tax.Amount, o.DeliveryFee.Amount, o.Discount.Amount, o.Total.Amount,
		o.Subtotal.Currency,
		o.PickupLocation.Lng, o.PickupLocation.Lat,
		o.DeliveryLocation.Lng, o.DeliveryLocation.Lat,
		o.PickupAddress,
		o.PickupCode,
		o.PickupCodeExpiry,
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

const orderColumns = `
	id, buyer_id, seller_id, courier_id, status, status_version,
	payment_status, payment_method, delivery_method, items,
	subtotal, tax, delivery_fee, discount, total, currency,
	pickup_lng, pickup_lat, delivery_lng, delivery_lat,
	pickup_address, pickup_code, pickup_code_expires_at,
	created_at, updated_at`

type pgxRow interface {
	Scan(dest ...any) error
}

func scanOrder(row pgxRow) (*Order, error) {
	var o Order
	var courierID, pickupCode sql.NullString
	var codeExpiry sql.NullTime
	var items []byte
	var currency string

	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &courierID, &o.Status, &o.StatusVersion,
		&o.PaymentStatus, &o.PaymentMethod, &o.DeliveryMethod, &items,
		&o.Subtotal.Amount, &o.Tax.Amount, &o.DeliveryFee.Amount, &o.Discount.Amount, &o.Total.Amount,
		&currency,
		&o.PickupLocation.Lng, &o.PickupLocation.Lat,
		&o.DeliveryLocation.Lng, &o.DeliveryLocation.Lat,
		&o.PickupAddress, &pickupCode, &codeExpiry,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	o.Subtotal.Currency = currency
	o.Tax.Currency = currency
	o.DeliveryFee.Currency = currency
	o.Discount.Currency = currency
	o.Total.Currency = currency
	o.PickupLocation.Provenance = geo.ProvenanceOrderField
	o.DeliveryLocation.Provenance = geo.ProvenanceOrderField
	if courierID.Valid {
		id := types.ID(courierID.String)
		o.CourierID = &id
	}
	if pickupCode.Valid {
		o.PickupCode = &pickupCode.String
	}
	if codeExpiry.Valid {
		t := codeExpiry.Time
		o.PickupCodeExpiry = &t
	}
	return &o, nil
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", cond, n)
		args = append(args, v)
	}
	if f.BuyerID != "" {
		add("buyer_id", string(f.BuyerID))
	}
	if f.SellerID != "" {
		add("seller_id", string(f.SellerID))
	}
	if f.CourierID != "" {
		add("courier_id", string(f.CourierID))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, pay *PaymentStatus) (bool, error) {
	var p *string
	if pay != nil {
		v := string(*pay)
		p = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    payment_status = COALESCE($2, payment_status),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), p, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) SetPaymentStatus(ctx context.Context, id types.ID, ps PaymentStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`,
		string(ps), string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) SetPickupCode(ctx context.Context, id types.ID, code *string, expiresAt *time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE orders SET pickup_code = $1, pickup_code_expires_at = $2, updated_at = NOW() WHERE id = $3`,
		code, expiresAt, string(id),
	)
	return err
}

func (s *PgStore) AssignCourier(ctx context.Context, id, courierID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET courier_id = $1, updated_at = NOW()
		WHERE id = $2 AND courier_id IS NULL AND status IN ('confirmed', 'preparing')`,
		string(courierID), string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ListConfirmedUnassigned(ctx context.Context) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'confirmed' AND courier_id IS NULL AND delivery_method <> 'pickup'
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) AppendEvent(ctx context.Context, e *StatusEvent) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO order_status_events (order_id, status, payment_status, note, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.OrderID), string(e.Status), string(e.PaymentStatus), e.Note, e.Source, e.CreatedAt,
	).Scan(&e.ID)
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
