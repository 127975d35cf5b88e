// Package storage provides database models and repositories for the entity filter.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// EntityRule is one row of the rule dictionary table. An empty AttributeType
// registers a base entity; a non-empty one registers an attribute of that type.
type EntityRule struct {
	ID            uuid.UUID `json:"id"`
	TenantID      string    `json:"tenantId"`
	Entity        string    `json:"entity"`
	AttributeType string    `json:"attributeType"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsAttribute reports whether the rule registers an attribute rather than a base entity.
func (r EntityRule) IsAttribute() bool {
	return r.AttributeType != ""
}
