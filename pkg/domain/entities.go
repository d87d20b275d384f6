// Package domain defines the persistent entities, money/markup value rules,
// and rule evaluation primitives used by costcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a construction project record.
	EntityProject EntityType = "project"
	// EntityEstimate identifies the priced estimate owned by a project.
	EntityEstimate EntityType = "estimate"
	// EntityTrade identifies a trade line item within an estimate.
	EntityTrade EntityType = "trade"
	// EntitySubItem identifies a cost component nested under a trade.
	EntitySubItem EntityType = "sub_item"
	// EntityTemplate identifies a reusable trade-set snapshot.
	EntityTemplate EntityType = "template"
	// EntityCategory identifies a trade category registry entry.
	EntityCategory EntityType = "category"
)

// ProjectStatus represents the canonical project workflow states.
type ProjectStatus string

// Project statuses move one-directionally; the only reversal is the explicit
// reopen back to estimating.
const (
	StatusEstimating ProjectStatus = "estimating"
	StatusInProgress ProjectStatus = "in-progress"
	StatusComplete   ProjectStatus = "complete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstimateSummary is the denormalized slice of estimate totals cached on the
// owning project so dashboards never recompute.
type EstimateSummary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	Contingency    decimal.Decimal `json:"contingency"`
	TotalEstimated decimal.Decimal `json:"total_estimated"`
}

// Project is the top of the ownership hierarchy. Each project owns exactly
// one estimate; deleting a project cascades to it.
type Project struct {
	Base
	Name     string            `json:"name"`
	Status   ProjectStatus     `json:"status"`
	Address  string            `json:"address"`
	Client   string            `json:"client"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Summary  EstimateSummary   `json:"summary"`
}

// Estimate is the priced container of trades belonging to one project.
// Subtotal, GrossProfit, Contingency and TotalEstimated are derived fields
// maintained by the aggregation engine.
type Estimate struct {
	Base
	ProjectID                 string          `json:"project_id"`
	DefaultMarkupPercent      decimal.Decimal `json:"default_markup_percent"`
	DefaultContingencyPercent decimal.Decimal `json:"default_contingency_percent"`
	Subtotal                  decimal.Decimal `json:"subtotal"`
	GrossProfit               decimal.Decimal `json:"gross_profit"`
	Contingency               decimal.Decimal `json:"contingency"`
	TotalEstimated            decimal.Decimal `json:"total_estimated"`
}

// Trade is a line item of estimated cost within one category of work.
// When the trade owns sub-items, its three direct cost fields are derived
// from the sub-item sums; otherwise they are authoritative. TotalCost is
// always derived.
type Trade struct {
	Base
	EstimateID        string           `json:"estimate_id"`
	Name              string           `json:"name"`
	CategoryKey       string           `json:"category_key"`
	CategoryGroup     string           `json:"category_group"`
	Quantity          decimal.Decimal  `json:"quantity"`
	Unit              string           `json:"unit"`
	LaborCost         decimal.Decimal  `json:"labor_cost"`
	MaterialCost      decimal.Decimal  `json:"material_cost"`
	SubcontractorCost decimal.Decimal  `json:"subcontractor_cost"`
	TotalCost         decimal.Decimal  `json:"total_cost"`
	MarkupPercent     *decimal.Decimal `json:"markup_percent,omitempty"`
	IsSubcontracted   bool             `json:"is_subcontracted"`
	WasteFactor       decimal.Decimal  `json:"waste_factor"`
	Position          int              `json:"position"`
	QuoteDocumentURL  *string          `json:"quote_document_url,omitempty"`
}

// SubItem is a finer-grained cost component nested under a trade. Its
// CategoryGroup mirrors the owning trade's grouping.
type SubItem struct {
	Base
	TradeID           string          `json:"trade_id"`
	Name              string          `json:"name"`
	CategoryGroup     string          `json:"category_group"`
	LaborCost         decimal.Decimal `json:"labor_cost"`
	MaterialCost      decimal.Decimal `json:"material_cost"`
	SubcontractorCost decimal.Decimal `json:"subcontractor_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
}

// TemplateTrade is an identity-stripped trade cost structure captured inside
// a template snapshot.
type TemplateTrade struct {
	Name              string           `json:"name"`
	CategoryKey       string           `json:"category_key"`
	CategoryGroup     string           `json:"category_group"`
	Quantity          decimal.Decimal  `json:"quantity"`
	Unit              string           `json:"unit"`
	LaborCost         decimal.Decimal  `json:"labor_cost"`
	MaterialCost      decimal.Decimal  `json:"material_cost"`
	SubcontractorCost decimal.Decimal  `json:"subcontractor_cost"`
	TotalCost         decimal.Decimal  `json:"total_cost"`
	MarkupPercent     *decimal.Decimal `json:"markup_percent,omitempty"`
	IsSubcontracted   bool             `json:"is_subcontracted"`
	WasteFactor       decimal.Decimal  `json:"waste_factor"`
}

// Template is a reusable snapshot of a trade set. The snapshot itself is
// immutable after creation; only UsageCount and project links move.
type Template struct {
	Base
	Name                      string          `json:"name"`
	Trades                    []TemplateTrade `json:"trades"`
	DefaultMarkupPercent      decimal.Decimal `json:"default_markup_percent"`
	DefaultContingencyPercent decimal.Decimal `json:"default_contingency_percent"`
	UsageCount                int             `json:"usage_count"`
	LinkedProjectIDs          []string        `json:"linked_project_ids,omitempty"`
}

// Category is a trade category registry entry. System entries are immutable;
// custom entries are organization-scoped and may not be key-renamed.
type Category struct {
	Base
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Icon         string  `json:"icon"`
	SortOrder    int     `json:"sort_order"`
	System       bool    `json:"system"`
	Organization *string `json:"organization,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
