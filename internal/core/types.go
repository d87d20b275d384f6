// Package core wires the persistence backends, backend router, aggregation
// engine and estimate operations into a single service facade.
package core

import (
	"costcore/pkg/domain"
)

// Re-exported domain aliases so service callers work against a single import.
type (
	// Project aliases the domain project record.
	Project = domain.Project
	// Estimate aliases the domain estimate record.
	Estimate = domain.Estimate
	// Trade aliases the domain trade line item.
	Trade = domain.Trade
	// SubItem aliases the domain sub-item record.
	SubItem = domain.SubItem
	// Template aliases the domain template snapshot.
	Template = domain.Template
	// TemplateTrade aliases the identity-stripped template trade entry.
	TemplateTrade = domain.TemplateTrade
	// Category aliases the domain category registry entry.
	Category = domain.Category
	// Result aliases the rule evaluation result.
	Result = domain.Result
	// RulesEngine aliases the domain rules engine.
	RulesEngine = domain.RulesEngine
	// PersistentStore aliases the storage abstraction satisfied by all backends.
	PersistentStore = domain.PersistentStore
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
