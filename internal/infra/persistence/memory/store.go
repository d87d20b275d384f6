// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"costcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project for in-memory persistence operations.
	Project = domain.Project
	// Estimate aliases domain.Estimate.
	Estimate = domain.Estimate
	// Trade aliases domain.Trade.
	Trade = domain.Trade
	// SubItem aliases domain.SubItem.
	SubItem = domain.SubItem
	// Template aliases domain.Template.
	Template = domain.Template
	// Category aliases domain.Category.
	Category = domain.Category
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	projects   map[string]Project
	estimates  map[string]Estimate
	trades     map[string]Trade
	subItems   map[string]SubItem
	templates  map[string]Template
	categories map[string]Category
}

// Snapshot captures a point-in-time clone of the store state. It is the unit
// of durable persistence for the sqlite and postgres stores and of the manual
// export/import path between backends.
type Snapshot struct {
	Projects   map[string]Project  `json:"projects"`
	Estimates  map[string]Estimate `json:"estimates"`
	Trades     map[string]Trade    `json:"trades"`
	SubItems   map[string]SubItem  `json:"sub_items"`
	Templates  map[string]Template `json:"templates"`
	Categories map[string]Category `json:"categories"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects:   make(map[string]Project),
		estimates:  make(map[string]Estimate),
		trades:     make(map[string]Trade),
		subItems:   make(map[string]SubItem),
		templates:  make(map[string]Template),
		categories: make(map[string]Category),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Projects:   make(map[string]Project, len(state.projects)),
		Estimates:  make(map[string]Estimate, len(state.estimates)),
		Trades:     make(map[string]Trade, len(state.trades)),
		SubItems:   make(map[string]SubItem, len(state.subItems)),
		Templates:  make(map[string]Template, len(state.templates)),
		Categories: make(map[string]Category, len(state.categories)),
	}
	for k, v := range state.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range state.estimates {
		s.Estimates[k] = cloneEstimate(v)
	}
	for k, v := range state.trades {
		s.Trades[k] = cloneTrade(v)
	}
	for k, v := range state.subItems {
		s.SubItems[k] = cloneSubItem(v)
	}
	for k, v := range state.templates {
		s.Templates[k] = cloneTemplate(v)
	}
	for k, v := range state.categories {
		s.Categories[k] = cloneCategory(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range s.Estimates {
		state.estimates[k] = cloneEstimate(v)
	}
	for k, v := range s.Trades {
		state.trades[k] = cloneTrade(v)
	}
	for k, v := range s.SubItems {
		state.subItems[k] = cloneSubItem(v)
	}
	for k, v := range s.Templates {
		state.templates[k] = cloneTemplate(v)
	}
	for k, v := range s.Categories {
		state.categories[k] = cloneCategory(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from durable storage: nil maps
// become empty, orphaned children are dropped, and legacy markup sentinels are
// normalized once at this boundary.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Estimates == nil {
		snapshot.Estimates = map[string]Estimate{}
	}
	if snapshot.Trades == nil {
		snapshot.Trades = map[string]Trade{}
	}
	if snapshot.SubItems == nil {
		snapshot.SubItems = map[string]SubItem{}
	}
	if snapshot.Templates == nil {
		snapshot.Templates = map[string]Template{}
	}
	if snapshot.Categories == nil {
		snapshot.Categories = map[string]Category{}
	}

	for id, estimate := range snapshot.Estimates {
		if _, ok := snapshot.Projects[estimate.ProjectID]; !ok {
			delete(snapshot.Estimates, id)
			continue
		}
		estimate.DefaultMarkupPercent = domain.NormalizeMarkupPercent(estimate.DefaultMarkupPercent)
		snapshot.Estimates[id] = estimate
	}
	for id, trade := range snapshot.Trades {
		if _, ok := snapshot.Estimates[trade.EstimateID]; !ok {
			delete(snapshot.Trades, id)
			continue
		}
		if trade.MarkupPercent != nil {
			normalized := domain.NormalizeMarkupPercent(*trade.MarkupPercent)
			trade.MarkupPercent = &normalized
			snapshot.Trades[id] = trade
		}
	}
	for id, item := range snapshot.SubItems {
		if _, ok := snapshot.Trades[item.TradeID]; !ok {
			delete(snapshot.SubItems, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.estimates {
		cloned.estimates[k] = cloneEstimate(v)
	}
	for k, v := range s.trades {
		cloned.trades[k] = cloneTrade(v)
	}
	for k, v := range s.subItems {
		cloned.subItems[k] = cloneSubItem(v)
	}
	for k, v := range s.templates {
		cloned.templates[k] = cloneTemplate(v)
	}
	for k, v := range s.categories {
		cloned.categories[k] = cloneCategory(v)
	}
	return cloned
}

func cloneProject(p Project) Project {
	if p.Metadata != nil {
		meta := make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			meta[k] = v
		}
		p.Metadata = meta
	}
	return p
}

func cloneEstimate(e Estimate) Estimate { return e }

func cloneTrade(t Trade) Trade {
	if t.MarkupPercent != nil {
		markup := *t.MarkupPercent
		t.MarkupPercent = &markup
	}
	if t.QuoteDocumentURL != nil {
		url := *t.QuoteDocumentURL
		t.QuoteDocumentURL = &url
	}
	return t
}

func cloneSubItem(i SubItem) SubItem { return i }

func cloneTemplate(t Template) Template {
	if len(t.Trades) > 0 {
		trades := make([]domain.TemplateTrade, len(t.Trades))
		copy(trades, t.Trades)
		for i := range trades {
			if trades[i].MarkupPercent != nil {
				markup := *trades[i].MarkupPercent
				trades[i].MarkupPercent = &markup
			}
		}
		t.Trades = trades
	}
	if len(t.LinkedProjectIDs) > 0 {
		t.LinkedProjectIDs = append([]string(nil), t.LinkedProjectIDs...)
	}
	return t
}

func cloneCategory(c Category) Category {
	if c.Organization != nil {
		org := *c.Organization
		c.Organization = &org
	}
	return c
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider; test hook.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListProjects returns all projects within the snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sortByCreated(out, func(p Project) (time.Time, string) { return p.CreatedAt, p.ID })
	return out
}

// ListEstimates returns all estimates within the snapshot.
func (v transactionView) ListEstimates() []Estimate {
	out := make([]Estimate, 0, len(v.state.estimates))
	for _, e := range v.state.estimates {
		out = append(out, cloneEstimate(e))
	}
	sortByCreated(out, func(e Estimate) (time.Time, string) { return e.CreatedAt, e.ID })
	return out
}

// ListTrades returns all trades within the snapshot.
func (v transactionView) ListTrades() []Trade {
	out := make([]Trade, 0, len(v.state.trades))
	for _, t := range v.state.trades {
		out = append(out, cloneTrade(t))
	}
	sortByCreated(out, func(t Trade) (time.Time, string) { return t.CreatedAt, t.ID })
	return out
}

// ListSubItems returns all sub-items within the snapshot.
func (v transactionView) ListSubItems() []SubItem {
	out := make([]SubItem, 0, len(v.state.subItems))
	for _, i := range v.state.subItems {
		out = append(out, cloneSubItem(i))
	}
	sortByCreated(out, func(i SubItem) (time.Time, string) { return i.CreatedAt, i.ID })
	return out
}

// ListTemplates returns all templates within the snapshot.
func (v transactionView) ListTemplates() []Template {
	out := make([]Template, 0, len(v.state.templates))
	for _, t := range v.state.templates {
		out = append(out, cloneTemplate(t))
	}
	sortByCreated(out, func(t Template) (time.Time, string) { return t.CreatedAt, t.ID })
	return out
}

// ListCategories returns all registry entries sorted by sort order then key.
func (v transactionView) ListCategories() []Category {
	out := make([]Category, 0, len(v.state.categories))
	for _, c := range v.state.categories {
		out = append(out, cloneCategory(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindEstimate retrieves an estimate by ID from the snapshot.
func (v transactionView) FindEstimate(id string) (Estimate, bool) {
	e, ok := v.state.estimates[id]
	if !ok {
		return Estimate{}, false
	}
	return cloneEstimate(e), true
}

// FindTrade retrieves a trade by ID from the snapshot.
func (v transactionView) FindTrade(id string) (Trade, bool) {
	t, ok := v.state.trades[id]
	if !ok {
		return Trade{}, false
	}
	return cloneTrade(t), true
}

// FindSubItem retrieves a sub-item by ID from the snapshot.
func (v transactionView) FindSubItem(id string) (SubItem, bool) {
	i, ok := v.state.subItems[id]
	if !ok {
		return SubItem{}, false
	}
	return cloneSubItem(i), true
}

// FindTemplate retrieves a template by ID from the snapshot.
func (v transactionView) FindTemplate(id string) (Template, bool) {
	t, ok := v.state.templates[id]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(t), true
}

// FindCategoryByKey retrieves a registry entry by case-insensitive key.
func (v transactionView) FindCategoryByKey(key string) (Category, bool) {
	return findCategoryByKey(v.state, key)
}

// EstimateByProject returns the estimate owned by the given project.
func (v transactionView) EstimateByProject(projectID string) (Estimate, bool) {
	return estimateByProject(v.state, projectID)
}

// TradesByEstimate returns the estimate's trades ordered by position.
func (v transactionView) TradesByEstimate(estimateID string) []Trade {
	return tradesByEstimate(v.state, estimateID)
}

// SubItemsByTrade returns the trade's sub-items in creation order.
func (v transactionView) SubItemsByTrade(tradeID string) []SubItem {
	return subItemsByTrade(v.state, tradeID)
}

func findCategoryByKey(state *memoryState, key string) (Category, bool) {
	for _, c := range state.categories {
		if strings.EqualFold(c.Key, key) {
			return cloneCategory(c), true
		}
	}
	return Category{}, false
}

func estimateByProject(state *memoryState, projectID string) (Estimate, bool) {
	for _, e := range state.estimates {
		if e.ProjectID == projectID {
			return cloneEstimate(e), true
		}
	}
	return Estimate{}, false
}

func tradesByEstimate(state *memoryState, estimateID string) []Trade {
	var out []Trade
	for _, t := range state.trades {
		if t.EstimateID == estimateID {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func subItemsByTrade(state *memoryState, tradeID string) []SubItem {
	var out []SubItem
	for _, i := range state.subItems {
		if i.TradeID == tradeID {
			out = append(out, cloneSubItem(i))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortByCreated[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetProject returns a project by ID outside any transaction.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects outside any transaction.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return view.ListProjects()
}

// GetEstimate returns an estimate by ID outside any transaction.
func (s *Store) GetEstimate(id string) (Estimate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.estimates[id]
	if !ok {
		return Estimate{}, false
	}
	return cloneEstimate(e), true
}

// GetTrade returns a trade by ID outside any transaction.
func (s *Store) GetTrade(id string) (Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.trades[id]
	if !ok {
		return Trade{}, false
	}
	return cloneTrade(t), true
}

// GetTemplate returns a template by ID outside any transaction.
func (s *Store) GetTemplate(id string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.templates[id]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(t), true
}

// ListTemplates returns all templates outside any transaction.
func (s *Store) ListTemplates() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return view.ListTemplates()
}

// ListCategories returns all registry entries outside any transaction.
func (s *Store) ListCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return view.ListCategories()
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProject exposes project lookup within the transaction scope.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindEstimate exposes estimate lookup within the transaction scope.
func (tx *transaction) FindEstimate(id string) (Estimate, bool) {
	e, ok := tx.state.estimates[id]
	if !ok {
		return Estimate{}, false
	}
	return cloneEstimate(e), true
}

// FindTrade exposes trade lookup within the transaction scope.
func (tx *transaction) FindTrade(id string) (Trade, bool) {
	t, ok := tx.state.trades[id]
	if !ok {
		return Trade{}, false
	}
	return cloneTrade(t), true
}

// FindSubItem exposes sub-item lookup within the transaction scope.
func (tx *transaction) FindSubItem(id string) (SubItem, bool) {
	i, ok := tx.state.subItems[id]
	if !ok {
		return SubItem{}, false
	}
	return cloneSubItem(i), true
}

// FindTemplate exposes template lookup within the transaction scope.
func (tx *transaction) FindTemplate(id string) (Template, bool) {
	t, ok := tx.state.templates[id]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(t), true
}

// EstimateByProject exposes the project→estimate lookup within the transaction scope.
func (tx *transaction) EstimateByProject(projectID string) (Estimate, bool) {
	return estimateByProject(&tx.state, projectID)
}

// TradesByEstimate exposes the ordered trade listing within the transaction scope.
func (tx *transaction) TradesByEstimate(estimateID string) []Trade {
	return tradesByEstimate(&tx.state, estimateID)
}

// SubItemsByTrade exposes the sub-item listing within the transaction scope.
func (tx *transaction) SubItemsByTrade(tradeID string) []SubItem {
	return subItemsByTrade(&tx.state, tradeID)
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, domain.ValidationError{Field: "project.id", Reason: "already exists"}
	}
	if p.Status == "" {
		p.Status = domain.StatusEstimating
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project using the provided mutator function.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project, cascading to its estimate, trades and sub-items.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	if estimate, ok := estimateByProject(&tx.state, id); ok {
		if err := tx.DeleteEstimate(estimate.ID); err != nil {
			return err
		}
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	return nil
}

// CreateEstimate stores a new estimate. A project owns at most one estimate.
func (tx *transaction) CreateEstimate(e Estimate) (Estimate, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.estimates[e.ID]; exists {
		return Estimate{}, domain.ValidationError{Field: "estimate.id", Reason: "already exists"}
	}
	if _, ok := tx.state.projects[e.ProjectID]; !ok {
		return Estimate{}, domain.NotFoundError{Entity: domain.EntityProject, ID: e.ProjectID}
	}
	if existing, ok := estimateByProject(&tx.state, e.ProjectID); ok {
		return Estimate{}, domain.ValidationError{Field: "estimate.project_id", Reason: "project already owns estimate " + existing.ID}
	}
	e.DefaultMarkupPercent = domain.NormalizeMarkupPercent(e.DefaultMarkupPercent)
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.estimates[e.ID] = cloneEstimate(e)
	tx.recordChange(Change{Entity: domain.EntityEstimate, Action: domain.ActionCreate, After: cloneEstimate(e)})
	return cloneEstimate(e), nil
}

// UpdateEstimate mutates an existing estimate.
func (tx *transaction) UpdateEstimate(id string, mutator func(*Estimate) error) (Estimate, error) {
	current, ok := tx.state.estimates[id]
	if !ok {
		return Estimate{}, domain.NotFoundError{Entity: domain.EntityEstimate, ID: id}
	}
	before := cloneEstimate(current)
	if err := mutator(&current); err != nil {
		return Estimate{}, err
	}
	current.ID = id
	current.ProjectID = before.ProjectID
	current.DefaultMarkupPercent = domain.NormalizeMarkupPercent(current.DefaultMarkupPercent)
	current.UpdatedAt = tx.now
	tx.state.estimates[id] = cloneEstimate(current)
	tx.recordChange(Change{Entity: domain.EntityEstimate, Action: domain.ActionUpdate, Before: before, After: cloneEstimate(current)})
	return cloneEstimate(current), nil
}

// DeleteEstimate removes an estimate, cascading to its trades and their sub-items.
func (tx *transaction) DeleteEstimate(id string) error {
	current, ok := tx.state.estimates[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEstimate, ID: id}
	}
	for _, trade := range tradesByEstimate(&tx.state, id) {
		if err := tx.DeleteTrade(trade.ID); err != nil {
			return err
		}
	}
	delete(tx.state.estimates, id)
	tx.recordChange(Change{Entity: domain.EntityEstimate, Action: domain.ActionDelete, Before: cloneEstimate(current)})
	return nil
}

// CreateTrade stores a new trade line item under an existing estimate.
func (tx *transaction) CreateTrade(t Trade) (Trade, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.trades[t.ID]; exists {
		return Trade{}, domain.ValidationError{Field: "trade.id", Reason: "already exists"}
	}
	if _, ok := tx.state.estimates[t.EstimateID]; !ok {
		return Trade{}, domain.NotFoundError{Entity: domain.EntityEstimate, ID: t.EstimateID}
	}
	if t.Position == 0 {
		t.Position = len(tradesByEstimate(&tx.state, t.EstimateID)) + 1
	}
	if t.MarkupPercent != nil {
		normalized := domain.NormalizeMarkupPercent(*t.MarkupPercent)
		t.MarkupPercent = &normalized
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.trades[t.ID] = cloneTrade(t)
	tx.recordChange(Change{Entity: domain.EntityTrade, Action: domain.ActionCreate, After: cloneTrade(t)})
	return cloneTrade(t), nil
}

// UpdateTrade mutates an existing trade.
func (tx *transaction) UpdateTrade(id string, mutator func(*Trade) error) (Trade, error) {
	current, ok := tx.state.trades[id]
	if !ok {
		return Trade{}, domain.NotFoundError{Entity: domain.EntityTrade, ID: id}
	}
	before := cloneTrade(current)
	if err := mutator(&current); err != nil {
		return Trade{}, err
	}
	current.ID = id
	current.EstimateID = before.EstimateID
	if current.MarkupPercent != nil {
		normalized := domain.NormalizeMarkupPercent(*current.MarkupPercent)
		current.MarkupPercent = &normalized
	}
	current.UpdatedAt = tx.now
	tx.state.trades[id] = cloneTrade(current)
	tx.recordChange(Change{Entity: domain.EntityTrade, Action: domain.ActionUpdate, Before: before, After: cloneTrade(current)})
	return cloneTrade(current), nil
}

// DeleteTrade removes a trade, cascading to its sub-items.
func (tx *transaction) DeleteTrade(id string) error {
	current, ok := tx.state.trades[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTrade, ID: id}
	}
	for _, item := range subItemsByTrade(&tx.state, id) {
		if err := tx.DeleteSubItem(item.ID); err != nil {
			return err
		}
	}
	delete(tx.state.trades, id)
	tx.recordChange(Change{Entity: domain.EntityTrade, Action: domain.ActionDelete, Before: cloneTrade(current)})
	return nil
}

// CreateSubItem stores a new sub-item under an existing trade. The sub-item
// inherits the owning trade's category grouping.
func (tx *transaction) CreateSubItem(i SubItem) (SubItem, error) {
	if i.ID == "" {
		i.ID = tx.store.newID()
	}
	if _, exists := tx.state.subItems[i.ID]; exists {
		return SubItem{}, domain.ValidationError{Field: "sub_item.id", Reason: "already exists"}
	}
	trade, ok := tx.state.trades[i.TradeID]
	if !ok {
		return SubItem{}, domain.NotFoundError{Entity: domain.EntityTrade, ID: i.TradeID}
	}
	i.CategoryGroup = trade.CategoryGroup
	i = domain.RollupSubItem(i)
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.subItems[i.ID] = cloneSubItem(i)
	tx.recordChange(Change{Entity: domain.EntitySubItem, Action: domain.ActionCreate, After: cloneSubItem(i)})
	return cloneSubItem(i), nil
}

// UpdateSubItem mutates an existing sub-item and refreshes its derived total.
func (tx *transaction) UpdateSubItem(id string, mutator func(*SubItem) error) (SubItem, error) {
	current, ok := tx.state.subItems[id]
	if !ok {
		return SubItem{}, domain.NotFoundError{Entity: domain.EntitySubItem, ID: id}
	}
	before := cloneSubItem(current)
	if err := mutator(&current); err != nil {
		return SubItem{}, err
	}
	current.ID = id
	current.TradeID = before.TradeID
	current = domain.RollupSubItem(current)
	current.UpdatedAt = tx.now
	tx.state.subItems[id] = cloneSubItem(current)
	tx.recordChange(Change{Entity: domain.EntitySubItem, Action: domain.ActionUpdate, Before: before, After: cloneSubItem(current)})
	return cloneSubItem(current), nil
}

// DeleteSubItem removes a sub-item from the transaction state.
func (tx *transaction) DeleteSubItem(id string) error {
	current, ok := tx.state.subItems[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySubItem, ID: id}
	}
	delete(tx.state.subItems, id)
	tx.recordChange(Change{Entity: domain.EntitySubItem, Action: domain.ActionDelete, Before: cloneSubItem(current)})
	return nil
}

// CreateTemplate stores a new template snapshot.
func (tx *transaction) CreateTemplate(t Template) (Template, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.templates[t.ID]; exists {
		return Template{}, domain.ValidationError{Field: "template.id", Reason: "already exists"}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.templates[t.ID] = cloneTemplate(t)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionCreate, After: cloneTemplate(t)})
	return cloneTemplate(t), nil
}

// UpdateTemplate mutates an existing template. The snapshotted trade list is
// immutable; only usage bookkeeping and project links may change.
func (tx *transaction) UpdateTemplate(id string, mutator func(*Template) error) (Template, error) {
	current, ok := tx.state.templates[id]
	if !ok {
		return Template{}, domain.NotFoundError{Entity: domain.EntityTemplate, ID: id}
	}
	before := cloneTemplate(current)
	if err := mutator(&current); err != nil {
		return Template{}, err
	}
	current.ID = id
	current.Trades = before.Trades
	current.UpdatedAt = tx.now
	tx.state.templates[id] = cloneTemplate(current)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionUpdate, Before: before, After: cloneTemplate(current)})
	return cloneTemplate(current), nil
}

// DeleteTemplate removes a template.
func (tx *transaction) DeleteTemplate(id string) error {
	current, ok := tx.state.templates[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTemplate, ID: id}
	}
	delete(tx.state.templates, id)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionDelete, Before: cloneTemplate(current)})
	return nil
}

// CreateCategory stores a new registry entry, rejecting case-insensitive key
// collisions so the caller can offer a disambiguated key.
func (tx *transaction) CreateCategory(c Category) (Category, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.categories[c.ID]; exists {
		return Category{}, domain.ValidationError{Field: "category.id", Reason: "already exists"}
	}
	if strings.TrimSpace(c.Key) == "" {
		return Category{}, domain.ValidationError{Field: "category.key", Reason: "must not be empty"}
	}
	if _, exists := findCategoryByKey(&tx.state, c.Key); exists {
		return Category{}, domain.KeyConflictError{Key: c.Key}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.categories[c.ID] = cloneCategory(c)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionCreate, After: cloneCategory(c)})
	return cloneCategory(c), nil
}

// UpdateCategory mutates a custom registry entry. System entries are
// immutable and keys may never be renamed.
func (tx *transaction) UpdateCategory(id string, mutator func(*Category) error) (Category, error) {
	current, ok := tx.state.categories[id]
	if !ok {
		return Category{}, domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	if current.System {
		return Category{}, domain.ValidationError{Field: "category", Reason: "system entries are immutable"}
	}
	before := cloneCategory(current)
	if err := mutator(&current); err != nil {
		return Category{}, err
	}
	if !strings.EqualFold(current.Key, before.Key) {
		return Category{}, domain.ValidationError{Field: "category.key", Reason: "keys cannot be renamed"}
	}
	current.ID = id
	current.Key = before.Key
	current.System = before.System
	current.UpdatedAt = tx.now
	tx.state.categories[id] = cloneCategory(current)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionUpdate, Before: before, After: cloneCategory(current)})
	return cloneCategory(current), nil
}

// DeleteCategory removes a custom registry entry.
func (tx *transaction) DeleteCategory(id string) error {
	current, ok := tx.state.categories[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
	}
	if current.System {
		return domain.ValidationError{Field: "category", Reason: "system entries are immutable"}
	}
	delete(tx.state.categories, id)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionDelete, Before: cloneCategory(current)})
	return nil
}
