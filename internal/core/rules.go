package core

// DefaultRulesEngine returns an engine with the standard rule set: required
// record names and project status transitions block, totals drift warns.
func DefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(RecordNameRule())
	engine.Register(ProjectStatusRule())
	engine.Register(EstimateTotalsRule())
	return engine
}
