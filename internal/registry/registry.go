// Package registry persists the set of known models and adapts them to the
// router's view. The backing table is re-read on every routing decision so
// configuration edits take effect without a restart.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/storage"
)

// successRateDecay controls the rolling success-rate update: each outcome
// moves the stored rate 10% of the way toward 1 or 0.
const successRateDecay = 0.9

// ModelStore abstracts the persistence operations the registry needs.
type ModelStore interface {
	ListModels() ([]storage.ModelRow, error)
	UpsertModel(m storage.ModelRow) error
	SetModelEnabled(id string, enabled bool) error
	UpdateModelSuccessRate(id string, rate float64) error
	DeleteModel(id string) error
}

// Registry is the SQLite-backed model registry.
type Registry struct {
	store  ModelStore
	logger *slog.Logger
}

// New creates a Registry over the given store.
func New(store ModelStore) *Registry {
	return &Registry{store: store, logger: slog.Default()}
}

// Models returns every registered model in registry order.
// Implements routing.Registry.
func (r *Registry) Models() ([]routing.Model, error) {
	rows, err := r.store.ListModels()
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	models := make([]routing.Model, 0, len(rows))
	for _, row := range rows {
		m, err := rowToModel(row)
		if err != nil {
			// A malformed row must not take down routing; skip it.
			r.logger.Warn("skipping malformed model row", "id", row.ID, "error", err)
			continue
		}
		models = append(models, m)
	}
	return models, nil
}

// Register inserts or replaces a model.
func (r *Registry) Register(m routing.Model, position int) error {
	caps, err := json.Marshal(m.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}
	if m.ID == "" {
		return fmt.Errorf("model id is required")
	}
	if m.Provider != routing.ProviderLocal && m.Provider != routing.ProviderCloud {
		return fmt.Errorf("unknown provider %q", m.Provider)
	}
	for _, c := range m.Capabilities {
		if !c.Valid() {
			return fmt.Errorf("invalid capability %q", c)
		}
	}

	return r.store.UpsertModel(storage.ModelRow{
		ID:           m.ID,
		Capabilities: string(caps),
		Provider:     string(m.Provider),
		Enabled:      m.Enabled,
		Priority:     m.Priority,
		SuccessRate:  m.SuccessRate,
		Position:     position,
	})
}

// SetEnabled flips a model's enablement flag.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.store.SetModelEnabled(id, enabled)
}

// Remove deletes a model registration.
func (r *Registry) Remove(id string) error {
	return r.store.DeleteModel(id)
}

// RecordOutcome folds one execution outcome into the model's rolling
// success rate. Unknown models are ignored: the model may have been
// removed while its task was in flight.
func (r *Registry) RecordOutcome(id string, success bool) {
	rows, err := r.store.ListModels()
	if err != nil {
		r.logger.Warn("reading registry for outcome update", "id", id, "error", err)
		return
	}

	for _, row := range rows {
		if row.ID != id {
			continue
		}
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		rate := row.SuccessRate*successRateDecay + outcome*(1-successRateDecay)
		if err := r.store.UpdateModelSuccessRate(id, rate); err != nil {
			r.logger.Warn("updating success rate", "id", id, "error", err)
		}
		return
	}
}

func rowToModel(row storage.ModelRow) (routing.Model, error) {
	var caps []routing.Capability
	if err := json.Unmarshal([]byte(row.Capabilities), &caps); err != nil {
		return routing.Model{}, fmt.Errorf("parsing capabilities: %w", err)
	}
	return routing.Model{
		ID:           row.ID,
		Capabilities: caps,
		Provider:     routing.Provider(row.Provider),
		Enabled:      row.Enabled,
		Priority:     row.Priority,
		SuccessRate:  row.SuccessRate,
	}, nil
}
