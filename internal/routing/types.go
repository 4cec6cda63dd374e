// Package routing selects the best model for a classified task intent from
// the set of registered models, with deterministic fallback when no exact
// capability match exists.
package routing

import (
	"errors"
	"strings"
	"time"
)

// Capability is a tag a model declares support for. The set is open:
// well-known values have constants but any validated tag is accepted.
type Capability string

const (
	CapabilityFast      Capability = "fast"
	CapabilityReasoning Capability = "reasoning"
	CapabilityVision    Capability = "vision"
	CapabilityCode      Capability = "code"
)

// Valid reports whether the tag is a usable capability name.
func (c Capability) Valid() bool {
	return c != "" && c == Capability(strings.ToLower(strings.TrimSpace(string(c))))
}

// Intent is a classification tag describing what kind of help a prompt is
// requesting. Like Capability, the set is open.
type Intent string

const (
	IntentGeneralChat      Intent = "general_chat"
	IntentQuickAnswer      Intent = "quick_answer"
	IntentComplexReasoning Intent = "complex_reasoning"
	IntentCodeGeneration   Intent = "code_generation"
	IntentVisionAnalysis   Intent = "vision_analysis"
)

// Valid reports whether the tag is a usable intent name.
func (i Intent) Valid() bool {
	return i != "" && i == Intent(strings.ToLower(strings.TrimSpace(string(i))))
}

// Provider classifies where a model executes.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderCloud Provider = "cloud"
)

// Model is a registered model and its declared routing attributes.
// Immutable during a routing decision; mutated only through the registry.
type Model struct {
	ID           string       `json:"id"`
	Capabilities []Capability `json:"capabilities"`
	Provider     Provider     `json:"provider"`
	Enabled      bool         `json:"enabled"`
	Priority     int          `json:"priority"`
	SuccessRate  float64      `json:"success_rate"`
}

// HasCapability reports whether the model declares the given capability.
func (m Model) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Constraints narrow and bias a routing call.
type Constraints struct {
	RequireLocal  bool `json:"require_local"`
	PreferFast    bool `json:"prefer_fast"`
	PreferQuality bool `json:"prefer_quality"`
}

// Preferences are the scoring-relevant subset of Constraints.
type Preferences struct {
	PreferFast    bool
	PreferQuality bool
}

// Decision is the immutable record of one routing call.
type Decision struct {
	TaskID        string    `json:"task_id,omitempty"`
	Intent        Intent    `json:"intent"`
	Model         Model     `json:"model"`
	Justification string    `json:"justification"`
	Alternatives  []Model   `json:"alternatives"`
	Confidence    float64   `json:"confidence"`
	Fallback      bool      `json:"fallback"`
	At            time.Time `json:"at"`
}

// Failure is published on the event bus when a routing call finds no
// usable model, even after fallback relaxation.
type Failure struct {
	TaskID string    `json:"task_id,omitempty"`
	Intent Intent    `json:"intent"`
	At     time.Time `json:"at"`
}

// Registry supplies the candidate model set. It is re-read on every routing
// call so live configuration edits take effect immediately.
type Registry interface {
	Models() ([]Model, error)
}

// CapabilityMapper maps an intent to the capability required to serve it.
type CapabilityMapper func(Intent) Capability

// Scorer ranks a candidate model for an intent. Higher is better; scores are
// interpreted on a 0-100 scale when deriving confidence.
type Scorer interface {
	Score(m Model, intent Intent, prefs Preferences) float64
}

// ErrNoModelAvailable is returned when filtering (including fallback
// relaxation) leaves no candidate. Wrapped errors name the intent.
var ErrNoModelAvailable = errors.New("no model available")
