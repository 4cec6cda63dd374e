package routing

// DefaultCapabilityFor maps the well-known intents onto the capability
// required to serve them. Unknown intents fall through to "fast" so a
// misclassified prompt still routes somewhere useful.
func DefaultCapabilityFor(intent Intent) Capability {
	switch intent {
	case IntentComplexReasoning:
		return CapabilityReasoning
	case IntentCodeGeneration:
		return CapabilityCode
	case IntentVisionAnalysis:
		return CapabilityVision
	case IntentGeneralChat, IntentQuickAnswer:
		return CapabilityFast
	default:
		return CapabilityFast
	}
}

// DefaultScorer is the stock scoring function: capability match dominates,
// then configured priority, then the rolling success rate, then the caller's
// fast/quality preference. Scores land on a 0-100 scale.
type DefaultScorer struct {
	CapFor CapabilityMapper
}

// NewDefaultScorer creates a DefaultScorer using the given intent mapping
// (DefaultCapabilityFor when nil).
func NewDefaultScorer(capFor CapabilityMapper) *DefaultScorer {
	if capFor == nil {
		capFor = DefaultCapabilityFor
	}
	return &DefaultScorer{CapFor: capFor}
}

// Score ranks a model for an intent.
func (s *DefaultScorer) Score(m Model, intent Intent, prefs Preferences) float64 {
	var score float64

	if m.HasCapability(s.CapFor(intent)) {
		score += 40
	}

	priority := m.Priority
	if priority > 20 {
		priority = 20
	}
	if priority < 0 {
		priority = 0
	}
	score += float64(priority)

	rate := m.SuccessRate
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	score += rate * 20

	if prefs.PreferFast && m.HasCapability(CapabilityFast) {
		score += 10
	}
	if prefs.PreferQuality && m.HasCapability(CapabilityReasoning) {
		score += 10
	}

	return score
}
