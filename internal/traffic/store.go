package traffic

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/database"
)

// Billing links a sensor to the account its telemetry is metered against.
// UserID is empty when the company has no admin to bill.
type Billing struct {
	UserID         string
	GatewayID      string
	CustomBytes    int64
	SubscribeBytes int64
}

// Store is the persistence slice the quota gate needs.
type Store interface {
	// ResolveBilling walks sensor -> site -> company -> admin. Returns nil
	// when the sensor, site, company, or gateway linkage is broken.
	ResolveBilling(ctx context.Context, sensorID string) (*Billing, error)
	// Debit consumes cost bytes from the account, custom bucket first.
	// The subscribe bucket may go negative; the next gate check catches it.
	Debit(ctx context.Context, userID string, cost int64) (custom, subscribe int64, err error)
}

// PgStore implements Store against PostgreSQL.
type PgStore struct {
	db *database.Database
}

func NewPgStore(db *database.Database) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) ResolveBilling(ctx context.Context, sensorID string) (*Billing, error) {
	query := `
		SELECT g.id,
		       COALESCE(u.id::text, ''),
		       COALESCE(u.custom_bytes, 0),
		       COALESCE(u.subscribe_bytes, 0)
		FROM sensors sn
		JOIN sites s ON s.id = sn.site_id
		JOIN companies c ON c.id = s.company_id
		JOIN gateways g ON g.site_id = s.id
		LEFT JOIN users u ON u.company_id = c.id AND u.role = 'admin'
		WHERE sn.id = $1
		LIMIT 1
	`

	billing := new(Billing)
	err := s.db.QueryRowContext(ctx, query, sensorID).Scan(
		&billing.GatewayID, &billing.UserID, &billing.CustomBytes, &billing.SubscribeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve billing for sensor %s: %w", sensorID, err)
	}
	return billing, nil
}

// Debit spends the custom bucket before the subscribe bucket in a single
// statement, so concurrent messages never double-charge.
func (s *PgStore) Debit(ctx context.Context, userID string, cost int64) (int64, int64, error) {
	query := `
		UPDATE users SET
			custom_bytes = CASE
				WHEN custom_bytes >= $2 THEN custom_bytes - $2
				ELSE 0
			END,
			subscribe_bytes = CASE
				WHEN custom_bytes >= $2 THEN subscribe_bytes
				ELSE subscribe_bytes - ($2 - custom_bytes)
			END
		WHERE id = $1
		RETURNING custom_bytes, subscribe_bytes
	`

	var custom, subscribe int64
	err := s.db.QueryRowContext(ctx, query, userID, cost).Scan(&custom, &subscribe)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to debit traffic for user %s: %w", userID, err)
	}
	return custom, subscribe, nil
}
