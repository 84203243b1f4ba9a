package recipients

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/model"
)

// PriorityStore persists escalation call list entries.
type PriorityStore interface {
	ListByCompany(ctx context.Context, companyID string, channel model.ChannelType) ([]*model.PriorityEntry, error)
	Insert(ctx context.Context, entry *model.PriorityEntry) error
	UpdatePriority(ctx context.Context, id string, priority int) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// CompanyStore provides the roster the call lists are reconciled against.
type CompanyStore interface {
	Roster(ctx context.Context, companyID string) ([]*model.User, error)
	Admin(ctx context.Context, companyID string) (*model.User, error)
}

// Resolver maintains per-(company, channel) escalation call lists lazily:
// seeded from the roster on first use, repaired against roster churn on
// every later use. Company rosters change independently of alert
// configuration, and dispatch is rare enough that reconciling here beats
// hooking every user mutation.
type Resolver struct {
	priorities PriorityStore
	companies  CompanyStore
}

func NewResolver(priorities PriorityStore, companies CompanyStore) *Resolver {
	return &Resolver{priorities: priorities, companies: companies}
}

// GetPriorities returns the company's call list for one channel in call
// order. A missing list is seeded admin-first, then managers, then viewers,
// and returned unfiltered; an existing list is repaired first and filtered
// to enabled entries.
func (r *Resolver) GetPriorities(ctx context.Context, channel model.ChannelType, companyID string) ([]*model.PriorityEntry, error) {
	entries, err := r.priorities.ListByCompany(ctx, companyID, channel)
	if err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}

	if len(entries) == 0 {
		if err := r.seed(ctx, channel, companyID); err != nil {
			return nil, err
		}
		return r.priorities.ListByCompany(ctx, companyID, channel)
	}

	if err := r.Repair(ctx, channel, companyID); err != nil {
		return nil, err
	}

	entries, err = r.priorities.ListByCompany(ctx, companyID, channel)
	if err != nil {
		return nil, fmt.Errorf("list priorities after repair: %w", err)
	}

	enabled := make([]*model.PriorityEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Enabled {
			enabled = append(enabled, entry)
		}
	}
	return enabled, nil
}

// seed creates the initial call list from the current roster. Order is
// fixed: admin first, then managers, then viewers, each in roster order.
func (r *Resolver) seed(ctx context.Context, channel model.ChannelType, companyID string) error {
	ordered, err := r.rosterInCallOrder(ctx, companyID)
	if err != nil {
		return err
	}

	priority := 1
	for _, user := range ordered {
		entry := &model.PriorityEntry{
			CompanyID: companyID,
			Type:      channel,
			UserID:    user.ID,
			Priority:  priority,
			Enabled:   true,
		}
		if err := r.priorities.Insert(ctx, entry); err != nil {
			return fmt.Errorf("seed priority for user %s: %w", user.ID, err)
		}
		priority++
	}
	return nil
}

// Repair recompacts the list to a dense 1..N sequence, drops entries whose
// user no longer exists, and appends roster members that have no entry yet.
// When the company has no admin the pass leaves everything untouched.
func (r *Resolver) Repair(ctx context.Context, channel model.ChannelType, companyID string) error {
	admin, err := r.companies.Admin(ctx, companyID)
	if err != nil {
		return fmt.Errorf("load company admin: %w", err)
	}
	if admin == nil {
		log.Warn().Str("company_id", companyID).Str("channel", string(channel)).
			Msg("skipping priority repair: company has no admin")
		return nil
	}

	entries, err := r.priorities.ListByCompany(ctx, companyID, channel)
	if err != nil {
		return fmt.Errorf("list priorities: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	present := make(map[string]bool, len(entries))
	priority := 1
	for _, entry := range entries {
		if entry.User == nil {
			if err := r.priorities.Delete(ctx, entry.ID); err != nil {
				return fmt.Errorf("drop orphaned priority %s: %w", entry.ID, err)
			}
			continue
		}
		present[entry.UserID] = true
		if entry.Priority != priority {
			if err := r.priorities.UpdatePriority(ctx, entry.ID, priority); err != nil {
				return fmt.Errorf("recompact priority %s: %w", entry.ID, err)
			}
		}
		priority++
	}

	ordered, err := r.rosterInCallOrder(ctx, companyID)
	if err != nil {
		return err
	}
	for _, user := range ordered {
		if present[user.ID] {
			continue
		}
		entry := &model.PriorityEntry{
			CompanyID: companyID,
			Type:      channel,
			UserID:    user.ID,
			Priority:  priority,
			Enabled:   true,
		}
		if err := r.priorities.Insert(ctx, entry); err != nil {
			return fmt.Errorf("append missing roster member %s: %w", user.ID, err)
		}
		priority++
	}
	return nil
}

// Up swaps the entry with its predecessor. The first entry is left alone.
func (r *Resolver) Up(ctx context.Context, channel model.ChannelType, companyID, entryID string) error {
	return r.swap(ctx, channel, companyID, entryID, -1)
}

// Down swaps the entry with its successor. The last entry is left alone.
func (r *Resolver) Down(ctx context.Context, channel model.ChannelType, companyID, entryID string) error {
	return r.swap(ctx, channel, companyID, entryID, +1)
}

func (r *Resolver) swap(ctx context.Context, channel model.ChannelType, companyID, entryID string, direction int) error {
	entries, err := r.priorities.ListByCompany(ctx, companyID, channel)
	if err != nil {
		return fmt.Errorf("list priorities: %w", err)
	}

	var current, neighbor *model.PriorityEntry
	for _, entry := range entries {
		if entry.ID == entryID {
			current = entry
		}
	}
	if current == nil {
		return fmt.Errorf("priority entry %s not found", entryID)
	}
	for _, entry := range entries {
		if entry.Priority == current.Priority+direction {
			neighbor = entry
		}
	}
	if neighbor == nil {
		return nil
	}

	if err := r.priorities.UpdatePriority(ctx, current.ID, neighbor.Priority); err != nil {
		return fmt.Errorf("move priority %s: %w", current.ID, err)
	}
	if err := r.priorities.UpdatePriority(ctx, neighbor.ID, current.Priority); err != nil {
		return fmt.Errorf("move priority %s: %w", neighbor.ID, err)
	}
	return nil
}

// Activate toggles whether an entry participates in escalation.
func (r *Resolver) Activate(ctx context.Context, entryID string, enabled bool) error {
	if err := r.priorities.SetEnabled(ctx, entryID, enabled); err != nil {
		return fmt.Errorf("toggle priority %s: %w", entryID, err)
	}
	return nil
}

// rosterInCallOrder returns the roster sorted into seeding order: admin,
// managers, viewers.
func (r *Resolver) rosterInCallOrder(ctx context.Context, companyID string) ([]*model.User, error) {
	roster, err := r.companies.Roster(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company roster: %w", err)
	}

	ordered := make([]*model.User, 0, len(roster))
	for _, role := range []model.Role{model.RoleAdmin, model.RoleManager, model.RoleViewer} {
		for _, user := range roster {
			if user.Role == role {
				ordered = append(ordered, user)
			}
		}
	}
	return ordered, nil
}
