package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry records who did what to which subject. Entries are append-only.
type AuditEntry struct {
	ID          string
	Actor       string // operator that performed the action
	Action      string // sale.commit, product.price_update, ...
	SubjectType string // sale, product
	SubjectID   string
	RequestID   string
	Before      JSON // state before the action, when it mutated something
	Detail      JSON
	Status      string // success, failure
	CreatedAt   time.Time
}

// JSON is a free-form document stored with audit entries.
type JSON map[string]any

// AuditAction enumerates the actions the engine audits.
type AuditAction string

const (
	AuditActionSaleCommit AuditAction = "sale.commit"
	AuditActionSaleReturn AuditAction = "sale.return"

	AuditActionProductCreate      AuditAction = "product.create"
	AuditActionProductPriceUpdate AuditAction = "product.price_update"
	AuditActionStockAdjust        AuditAction = "stock.adjust"
)

// Audit subject types.
const (
	SubjectTypeSale    = "sale"
	SubjectTypeProduct = "product"
)

// AuditStatus is the outcome of an audited action.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to a JSON document for audit entries.
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter narrows an audit listing. Zero fields do not filter.
type AuditFilter struct {
	Actor       string
	Action      string
	SubjectType string
	SubjectID   string
	Range       TimeRange
	Limit       int
	Offset      int
}

// Matches reports whether e passes the filter's field predicates.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}

	if f.Action != "" && e.Action != f.Action {
		return false
	}

	if f.SubjectType != "" && e.SubjectType != f.SubjectType {
		return false
	}

	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}

	return f.Range.Contains(e.CreatedAt)
}
