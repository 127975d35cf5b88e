package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidTenant = errors.New("invalid tenant")
	ErrEmptyEntity   = errors.New("entity name is empty")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RuleRepository handles entity_rules CRUD operations.
type RuleRepository struct {
	db    DB
	table string
}

// NewRuleRepository creates a new rule repository over the given table.
// An empty table name selects the default "entity_rules".
func NewRuleRepository(db DB, table string) *RuleRepository {
	if table == "" {
		table = DefaultRuleTable
	}
	return &RuleRepository{db: db, table: table}
}

// Table returns the backing table name.
func (r *RuleRepository) Table() string {
	return r.table
}

// Create inserts a new rule. Duplicate (tenant, entity) pairs are rejected by
// the unique index.
func (r *RuleRepository) Create(ctx context.Context, rule *EntityRule) error {
	if rule.TenantID == "" {
		return ErrInvalidTenant
	}
	rule.Entity = strings.TrimSpace(rule.Entity)
	rule.AttributeType = strings.TrimSpace(rule.AttributeType)
	if rule.Entity == "" {
		return ErrEmptyEntity
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (id, tenant_id, entity, attribute_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		rule.ID.String(), rule.TenantID, rule.Entity, rule.AttributeType,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule %q: %w", rule.Entity, err)
	}
	return nil
}

// Upsert inserts a rule or, when the tenant already has the entity, updates
// its attribute type. It reports whether a new row was created.
func (r *RuleRepository) Upsert(ctx context.Context, rule *EntityRule) (bool, error) {
	existing, err := r.GetByEntity(ctx, rule.TenantID, strings.TrimSpace(rule.Entity))
	if errors.Is(err, ErrNotFound) {
		return true, r.Create(ctx, rule)
	}
	if err != nil {
		return false, err
	}

	rule.ID = existing.ID
	rule.Entity = existing.Entity
	rule.AttributeType = strings.TrimSpace(rule.AttributeType)
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s SET attribute_type = $1, updated_at = $2
		WHERE tenant_id = $3 AND entity = $4
	`, r.table)
	if _, err := r.db.ExecContext(ctx, query, rule.AttributeType, rule.UpdatedAt, rule.TenantID, rule.Entity); err != nil {
		return false, fmt.Errorf("update rule %q: %w", rule.Entity, err)
	}
	return false, nil
}

// GetByEntity retrieves a tenant's rule by its entity name.
func (r *RuleRepository) GetByEntity(ctx context.Context, tenantID, entity string) (*EntityRule, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, entity, attribute_type, created_at, updated_at
		FROM %s WHERE tenant_id = $1 AND entity = $2
	`, r.table)

	rule := &EntityRule{}
	var id string
	err := r.db.QueryRowContext(ctx, query, tenantID, entity).Scan(
		&id, &rule.TenantID, &rule.Entity, &rule.AttributeType,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rule.ID, _ = uuid.Parse(id)
	return rule, nil
}

// ListByTenant returns all rules for a tenant in insertion order.
func (r *RuleRepository) ListByTenant(ctx context.Context, tenantID string) ([]EntityRule, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, entity, attribute_type, created_at, updated_at
		FROM %s WHERE tenant_id = $1
		ORDER BY created_at, entity
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []EntityRule
	for rows.Next() {
		var rule EntityRule
		var id string
		var attrType sql.NullString
		if err := rows.Scan(&id, &rule.TenantID, &rule.Entity, &attrType, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.ID, _ = uuid.Parse(id)
		rule.AttributeType = attrType.String
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// Count returns the number of rules stored for a tenant.
func (r *RuleRepository) Count(ctx context.Context, tenantID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1`, r.table)
	var n int
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

// DeleteByTenant removes every rule for a tenant and returns how many were deleted.
func (r *RuleRepository) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query, tenantID)
	if err != nil {
		return 0, fmt.Errorf("delete rules: %w", err)
	}
	return res.RowsAffected()
}
