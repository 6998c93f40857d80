package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/transport-marketplace/internal/models"
)

// PostgresStore is the OfferStore backed by the offers table
// (migrations/001_create_offers.sql).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) DB() *sql.DB { return p.db }

const offerColumns = `id, request_id, carrier_id, vehicle_id, status, price, currency, description, included_services, departure_time, return_time, estimated_duration, valid_until, created_at`

func (p *PostgresStore) Save(ctx context.Context, o models.Offer) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO offers(`+offerColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, price=EXCLUDED.price, description=EXCLUDED.description, included_services=EXCLUDED.included_services, valid_until=EXCLUDED.valid_until`,
		o.ID, o.RequestID, o.CarrierID, o.VehicleID, string(o.Status), o.Price, o.Currency, o.Description,
		pq.Array(o.IncludedServices), o.DepartureTime, nullTime(o.ReturnTime), o.EstimatedDuration, o.ValidUntil, o.CreatedAt)
	return err
}

// SeedOffers inserts offers that are not stored yet, leaving existing rows alone.
func (p *PostgresStore) SeedOffers(ctx context.Context, offers []models.Offer) error {
	for _, o := range offers {
		_, err := p.db.ExecContext(ctx, `INSERT INTO offers(`+offerColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) ON CONFLICT (id) DO NOTHING`,
			o.ID, o.RequestID, o.CarrierID, o.VehicleID, string(o.Status), o.Price, o.Currency, o.Description,
			pq.Array(o.IncludedServices), o.DepartureTime, nullTime(o.ReturnTime), o.EstimatedDuration, o.ValidUntil, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("seed offer %s: %w", o.ID, err)
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (models.Offer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=$1`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, ErrNotFound
	}
	return o, err
}

func (p *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	return p.list(ctx, `SELECT `+offerColumns+` FROM offers WHERE request_id=$1 ORDER BY created_at, id`, requestID)
}

func (p *PostgresStore) ListByCarrier(ctx context.Context, carrierID string) ([]models.Offer, error) {
	return p.list(ctx, `SELECT `+offerColumns+` FROM offers WHERE carrier_id=$1 ORDER BY created_at, id`, carrierID)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.Offer, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountByRequest(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT request_id, COUNT(*) FROM offers GROUP BY request_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// Accept locks every offer of the request, then compare-and-swaps the chosen
// one from pending to accepted. The partial unique index on accepted offers
// backs the same rule at the schema level.
func (p *PostgresStore) Accept(ctx context.Context, id string, now time.Time) (models.Offer, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Offer{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var requestID string
	if err := tx.QueryRowContext(ctx, `SELECT request_id FROM offers WHERE id=$1`, id).Scan(&requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Offer{}, ErrNotFound
		}
		return models.Offer{}, err
	}
	if err := lockRequestOffers(ctx, tx, requestID); err != nil {
		return models.Offer{}, err
	}
	var accepted int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE request_id=$1 AND status=$2`, requestID, string(models.OfferAccepted)).Scan(&accepted); err != nil {
		return models.Offer{}, err
	}
	if accepted > 0 {
		return models.Offer{}, fmt.Errorf("%w: request %s already has an accepted offer", ErrConflict, requestID)
	}

	res, err := tx.ExecContext(ctx, `UPDATE offers SET status=$1 WHERE id=$2 AND status=$3 AND valid_until >= $4`,
		string(models.OfferAccepted), id, string(models.OfferPending), now)
	if err != nil {
		return models.Offer{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Offer{}, err
	}
	if n != 1 {
		return models.Offer{}, fmt.Errorf("%w: offer %s is not pending", ErrConflict, id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE offers SET status=$1 WHERE request_id=$2 AND id<>$3 AND status=$4`,
		string(models.OfferRejected), requestID, id, string(models.OfferPending)); err != nil {
		return models.Offer{}, err
	}
	o, err := scanOffer(tx.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=$1`, id))
	if err != nil {
		return models.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Offer{}, err
	}
	return o, nil
}

// lockRequestOffers takes row locks on all offers of a request so concurrent
// accepts for it run one after another.
func lockRequestOffers(ctx context.Context, tx *sql.Tx, requestID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM offers WHERE request_id=$1 FOR UPDATE`, requestID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(s scanner) (models.Offer, error) {
	var (
		o        models.Offer
		status   string
		desc     sql.NullString
		services pq.StringArray
		ret      sql.NullTime
	)
	err := s.Scan(&o.ID, &o.RequestID, &o.CarrierID, &o.VehicleID, &status, &o.Price, &o.Currency, &desc,
		&services, &o.DepartureTime, &ret, &o.EstimatedDuration, &o.ValidUntil, &o.CreatedAt)
	if err != nil {
		return models.Offer{}, err
	}
	o.Status = models.OfferStatus(status)
	o.Description = desc.String
	o.IncludedServices = []string(services)
	if o.IncludedServices == nil {
		o.IncludedServices = []string{}
	}
	if ret.Valid {
		t := ret.Time
		o.ReturnTime = &t
	}
	return o, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
