package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// CompanyRepo is the data access layer for companies and their rosters.
type CompanyRepo struct {
	db *Database
}

func NewCompanyRepo(db *Database) *CompanyRepo {
	return &CompanyRepo{db: db}
}

const companyColumns = `c.id, c.name,
		c.alert_sms_admin, c.alert_sms_managers, c.alert_sms_viewers,
		c.alert_email_admin, c.alert_email_managers, c.alert_email_viewers`

// CompanyBySensor resolves the company owning a sensor through its site.
// Returns nil when the sensor is not attached to a company.
func (r *CompanyRepo) CompanyBySensor(ctx context.Context, sensorID string) (*model.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		JOIN sites s ON s.company_id = c.id
		JOIN sensors sn ON sn.site_id = s.id
		WHERE sn.id = $1
	`
	return r.scanCompany(r.db.QueryRowContext(ctx, query, sensorID))
}

// CompanyByGateway resolves the company owning a gateway through its site.
func (r *CompanyRepo) CompanyByGateway(ctx context.Context, gatewayID string) (*model.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies c
		JOIN sites s ON s.company_id = c.id
		JOIN gateways g ON g.site_id = s.id
		WHERE g.id = $1
	`
	return r.scanCompany(r.db.QueryRowContext(ctx, query, gatewayID))
}

// Roster returns every user in the company.
func (r *CompanyRepo) Roster(ctx context.Context, companyID string) ([]*model.User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, role, company_id
		FROM users
		WHERE company_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query company roster: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := new(model.User)
		err := rows.Scan(&user.ID, &user.FirstName, &user.LastName,
			&user.Email, &user.Phone, &user.Role, &user.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster: %w", err)
	}
	return users, nil
}

// Admin returns the company's admin, or nil when none exists.
func (r *CompanyRepo) Admin(ctx context.Context, companyID string) (*model.User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, role, company_id
		FROM users
		WHERE company_id = $1 AND role = $2
		LIMIT 1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, companyID, model.RoleAdmin))
}

// UserByID loads a single user, or nil when absent.
func (r *CompanyRepo) UserByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, role, company_id
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// UserByPhone matches an inbound caller or SMS sender to a user.
func (r *CompanyRepo) UserByPhone(ctx context.Context, phone string) (*model.User, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, role, company_id
		FROM users
		WHERE phone = $1
		LIMIT 1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, phone))
}

func (r *CompanyRepo) scanCompany(row *sql.Row) (*model.Company, error) {
	company := new(model.Company)
	err := row.Scan(&company.ID, &company.Name,
		&company.AlertSMSAdmin, &company.AlertSMSManagers, &company.AlertSMSViewers,
		&company.AlertEmailAdmin, &company.AlertEmailManagers, &company.AlertEmailViewers)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	return company, nil
}

func (r *CompanyRepo) scanUser(row *sql.Row) (*model.User, error) {
	user := new(model.User)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName,
		&user.Email, &user.Phone, &user.Role, &user.CompanyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}
