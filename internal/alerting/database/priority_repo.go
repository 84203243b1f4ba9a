package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// PriorityRepo is the data access layer for escalation call lists.
type PriorityRepo struct {
	db *Database
}

func NewPriorityRepo(db *Database) *PriorityRepo {
	return &PriorityRepo{db: db}
}

// ListByCompany returns the company's entries for one channel in call order.
// Entries whose user no longer exists come back with a nil User so the
// repair pass can drop them.
func (r *PriorityRepo) ListByCompany(ctx context.Context, companyID string, channel model.ChannelType) ([]*model.PriorityEntry, error) {
	query := `
		SELECT p.id, p.company_id, p.type, p.user_id, p.priority, p.enabled,
		       u.id, u.first_name, u.last_name, u.email, u.phone, u.role, u.company_id
		FROM alert_priorities p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.company_id = $1 AND p.type = $2
		ORDER BY p.priority ASC
	`

	rows, err := r.db.QueryContext(ctx, query, companyID, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to query priorities: %w", err)
	}
	defer rows.Close()

	var entries []*model.PriorityEntry
	for rows.Next() {
		entry := new(model.PriorityEntry)
		var (
			userID    sql.NullString
			firstName sql.NullString
			lastName  sql.NullString
			email     sql.NullString
			phone     sql.NullString
			role      sql.NullString
			company   sql.NullString
		)
		err := rows.Scan(&entry.ID, &entry.CompanyID, &entry.Type, &entry.UserID,
			&entry.Priority, &entry.Enabled,
			&userID, &firstName, &lastName, &email, &phone, &role, &company)
		if err != nil {
			return nil, fmt.Errorf("failed to scan priority: %w", err)
		}
		if userID.Valid {
			entry.User = &model.User{
				ID:        userID.String,
				FirstName: firstName.String,
				LastName:  lastName.String,
				Email:     email.String,
				Phone:     phone.String,
				Role:      model.Role(role.String),
				CompanyID: company.String,
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priorities: %w", err)
	}
	return entries, nil
}

// Insert creates one entry, assigning its id.
func (r *PriorityRepo) Insert(ctx context.Context, entry *model.PriorityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO alert_priorities (id, company_id, type, user_id, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.CompanyID, entry.Type, entry.UserID, entry.Priority, entry.Enabled)
	if err != nil {
		return fmt.Errorf("failed to insert priority: %w", err)
	}
	return nil
}

// UpdatePriority moves one entry to a new position.
func (r *PriorityRepo) UpdatePriority(ctx context.Context, id string, priority int) error {
	query := `UPDATE alert_priorities SET priority = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, priority); err != nil {
		return fmt.Errorf("failed to update priority: %w", err)
	}
	return nil
}

// SetEnabled toggles whether the entry participates in escalation.
func (r *PriorityRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE alert_priorities SET enabled = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, enabled); err != nil {
		return fmt.Errorf("failed to update priority enabled flag: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (r *PriorityRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM alert_priorities WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete priority: %w", err)
	}
	return nil
}
