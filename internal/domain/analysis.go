package domain

import "time"

// Scores holds the two aggregated directional scores of one cycle.
type Scores struct {
	Long  float64
	Short float64
}

// Analysis is the persisted outcome of one evaluation cycle for one symbol.
// Exactly one exists per (symbol, time); it is immutable after creation and
// never recomputed for a past cycle.
type Analysis struct {
	ID        int64
	Time      time.Time
	Symbol    string
	Timeframe string

	// Modules maps every configured module to its result for this cycle.
	// A nil entry means the module was unavailable (insufficient history or
	// failed feed) and contributed nothing.
	Modules map[ModuleName]*ModuleResult

	Scores   Scores
	Coverage float64 // Contributing modules / configured modules, [0, 1]
	Bias     Signal
	Decision Decision
}

// ModuleSignal returns the signal of a module for this cycle, or NEUTRAL when
// the module was unavailable.
func (a *Analysis) ModuleSignal(name ModuleName) Signal {
	if r, ok := a.Modules[name]; ok && r != nil {
		return r.Signal
	}
	return SignalNeutral
}

// SideScore returns the aggregated score for a position side.
func (a *Analysis) SideScore(side Side) float64 {
	if side == SideShort {
		return a.Scores.Short
	}
	return a.Scores.Long
}
