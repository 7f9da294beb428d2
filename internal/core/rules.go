package core

import "samplecore/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
// Every commit is evaluated against it; blocking violations abort the
// transaction before any state becomes visible.
func NewDefaultRulesEngine(maxSampleSize int) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewMembershipUniquenessRule())
	engine.Register(NewSampleSizeRule(maxSampleSize))
	engine.Register(NewRevisionIntegrityRule())
	return engine
}
