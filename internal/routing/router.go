package routing

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/helmsman-ai/helmsman/internal/events"
)

const (
	defaultHistorySize = 50
	maxAlternatives    = 3
)

// Options configure a Router.
type Options struct {
	// FallbackEnabled allows relaxing capability filtering when no exact
	// match exists.
	FallbackEnabled bool
	// HistorySize bounds the in-memory decision history (default 50).
	HistorySize int
	// Bus receives a routing-decision event on every Select call. Optional.
	Bus *events.Bus
}

// Router scores and selects a model for a classified intent.
// For a fixed registry and scoring function, Select is a pure function of
// (intent, constraints): same inputs always yield the same selected model.
type Router struct {
	registry Registry
	scorer   Scorer
	capFor   CapabilityMapper
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	history []Decision
}

// NewRouter creates a Router over the given registry, scorer, and
// intent-to-capability mapping. A nil scorer or mapper falls back to the
// defaults.
func NewRouter(registry Registry, scorer Scorer, capFor CapabilityMapper, opts Options) *Router {
	if scorer == nil {
		scorer = NewDefaultScorer(nil)
	}
	if capFor == nil {
		capFor = DefaultCapabilityFor
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	return &Router{
		registry: registry,
		scorer:   scorer,
		capFor:   capFor,
		opts:     opts,
		logger:   slog.Default(),
	}
}

type scoredModel struct {
	model Model
	score float64
}

// Select picks the best model for the intent under the given constraints.
// taskID is recorded on the decision for correlation; pass "" for ad-hoc calls.
func (r *Router) Select(taskID string, intent Intent, c Constraints) (Decision, error) {
	models, err := r.registry.Models()
	if err != nil {
		return Decision{}, fmt.Errorf("reading registry: %w", err)
	}

	required := r.capFor(intent)

	candidates := filterModels(models, func(m Model) bool {
		return m.Enabled && m.HasCapability(required)
	})
	if c.RequireLocal {
		candidates = filterModels(candidates, func(m Model) bool { return m.Provider == ProviderLocal })
	}

	fallback := false
	if len(candidates) == 0 && r.opts.FallbackEnabled {
		fallback = true
		// Relax to all enabled models, excluding vision-only models for
		// non-vision intents: a model that can only see images is useless
		// for text work even as a last resort.
		candidates = filterModels(models, func(m Model) bool {
			if !m.Enabled {
				return false
			}
			if visionOnly(m) && required != CapabilityVision {
				return false
			}
			return true
		})
		if c.RequireLocal {
			candidates = filterModels(candidates, func(m Model) bool { return m.Provider == ProviderLocal })
		}
	}

	if len(candidates) == 0 {
		if r.opts.Bus != nil {
			r.opts.Bus.Publish(events.TypeRoutingFailure, Failure{TaskID: taskID, Intent: intent, At: time.Now().UTC()})
		}
		return Decision{}, fmt.Errorf("intent %q: %w", intent, ErrNoModelAvailable)
	}

	prefs := Preferences{PreferFast: c.PreferFast, PreferQuality: c.PreferQuality}
	scored := make([]scoredModel, len(candidates))
	for i, m := range candidates {
		scored[i] = scoredModel{model: m, score: r.scorer.Score(m, intent, prefs)}
	}
	// Stable sort keeps registry order for ties.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	selected := scored[0]

	alternatives := make([]Model, 0, maxAlternatives)
	for _, s := range scored[1:] {
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, s.model)
	}

	justification := fmt.Sprintf("selected %s for intent %q (capability %s, score %.0f)",
		selected.model.ID, intent, required, selected.score)
	if fallback {
		justification += " (Fallback)"
	}

	d := Decision{
		TaskID:        taskID,
		Intent:        intent,
		Model:         selected.model,
		Justification: justification,
		Alternatives:  alternatives,
		Confidence:    clamp01(selected.score / 100),
		Fallback:      fallback,
		At:            time.Now().UTC(),
	}

	r.appendHistory(d)
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(events.TypeRoutingDecision, d)
	}

	r.logger.Debug("routing decision",
		"task_id", taskID,
		"intent", intent,
		"model", d.Model.ID,
		"confidence", d.Confidence,
		"fallback", fallback,
	)
	return d, nil
}

// History returns a copy of the bounded decision history, oldest first.
func (r *Router) History() []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Decision, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Router) appendHistory(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, d)
	if len(r.history) > r.opts.HistorySize {
		r.history = r.history[len(r.history)-r.opts.HistorySize:]
	}
}

func filterModels(models []Model, keep func(Model) bool) []Model {
	var out []Model
	for _, m := range models {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func visionOnly(m Model) bool {
	return len(m.Capabilities) == 1 && m.Capabilities[0] == CapabilityVision
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
