package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// GatewayRepo is the data access layer for field gateways.
type GatewayRepo struct {
	db *Database
}

func NewGatewayRepo(db *Database) *GatewayRepo {
	return &GatewayRepo{db: db}
}

// GetGateway returns one gateway by id, or nil when it does not exist.
func (r *GatewayRepo) GetGateway(ctx context.Context, id string) (*model.Gateway, error) {
	query := `SELECT id, site_id, name FROM gateways WHERE id = $1`

	gateway := new(model.Gateway)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&gateway.ID, &gateway.SiteID, &gateway.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query gateway: %w", err)
	}
	return gateway, nil
}
