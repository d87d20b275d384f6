package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateEstimate(Estimate) (Estimate, error)
	UpdateEstimate(id string, mutator func(*Estimate) error) (Estimate, error)
	DeleteEstimate(id string) error
	CreateTrade(Trade) (Trade, error)
	UpdateTrade(id string, mutator func(*Trade) error) (Trade, error)
	DeleteTrade(id string) error
	CreateSubItem(SubItem) (SubItem, error)
	UpdateSubItem(id string, mutator func(*SubItem) error) (SubItem, error)
	DeleteSubItem(id string) error
	CreateTemplate(Template) (Template, error)
	UpdateTemplate(id string, mutator func(*Template) error) (Template, error)
	DeleteTemplate(id string) error
	CreateCategory(Category) (Category, error)
	UpdateCategory(id string, mutator func(*Category) error) (Category, error)
	DeleteCategory(id string) error
	FindProject(id string) (Project, bool)
	FindEstimate(id string) (Estimate, bool)
	FindTrade(id string) (Trade, bool)
	FindSubItem(id string) (SubItem, bool)
	FindTemplate(id string) (Template, bool)
	EstimateByProject(projectID string) (Estimate, bool)
	TradesByEstimate(estimateID string) []Trade
	SubItemsByTrade(tradeID string) []SubItem
}

// TransactionView provides read-only access to snapshot data for rules and
// read paths.
type TransactionView interface {
	ListProjects() []Project
	ListEstimates() []Estimate
	ListTrades() []Trade
	ListSubItems() []SubItem
	ListTemplates() []Template
	ListCategories() []Category
	FindProject(id string) (Project, bool)
	FindEstimate(id string) (Estimate, bool)
	FindTrade(id string) (Trade, bool)
	FindSubItem(id string) (SubItem, bool)
	FindTemplate(id string) (Template, bool)
	FindCategoryByKey(key string) (Category, bool)
	EstimateByProject(projectID string) (Estimate, bool)
	TradesByEstimate(estimateID string) []Trade
	SubItemsByTrade(tradeID string) []SubItem
}

// PersistentStore is a minimal abstraction over durable backends. Both the
// local embedded store and the remote networked store implement it with
// identical operation semantics.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetEstimate(id string) (Estimate, bool)
	GetTrade(id string) (Trade, bool)
	GetTemplate(id string) (Template, bool)
	ListTemplates() []Template
	ListCategories() []Category
}
