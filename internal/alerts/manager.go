// Package alerts keeps the bounded alert backlog and its lifecycle:
// stream-fed upserts, remote-confirmed acknowledgement, and local dismissal.
package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exec-feed-sync/internal/cache"
	"exec-feed-sync/internal/record"
)

// Remote performs the upstream alert actions. Acknowledge is
// confirm-before-mutate; dismiss is best effort only.
type Remote interface {
	AcknowledgeAlert(ctx context.Context, id string) error
}

// ListFilter narrows List results. Empty fields always pass.
type ListFilter struct {
	Severities   []record.Severity
	Instrument   string
	Acknowledged *bool
}

// Manager owns one feed's alert set.
type Manager struct {
	store  *cache.Store[record.Alert]
	remote Remote
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	dismissed map[string]struct{}
}

// NewManager constructs a Manager bounded at maxAlerts entries.
func NewManager(remote Remote, maxAlerts int, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     cache.New[record.Alert](maxAlerts),
		remote:    remote,
		logger:    logger.With().Str("component", "alerts").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		dismissed: make(map[string]struct{}),
	}
}

// Add upserts an alert by id. A re-emitted id clears any earlier local
// dismissal: dismiss hides an alert, it does not suppress future emissions.
func (m *Manager) Add(a record.Alert) {
	if a.ID == "" {
		m.logger.Warn().Msg("dropping alert without id")
		return
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}

	m.mu.Lock()
	delete(m.dismissed, a.ID)
	m.mu.Unlock()

	m.store.Upsert(a)
}

// AddMany upserts a batch, typically the initial backlog fetch.
func (m *Manager) AddMany(as []record.Alert) {
	for _, a := range as {
		m.Add(a)
	}
}

// Acknowledge confirms an alert upstream and only then flips local state.
// Returns false with the error when the remote call fails; local state is
// untouched in that case. Acknowledged is monotonic, so an already
// acknowledged alert short-circuits to true.
func (m *Manager) Acknowledge(ctx context.Context, id string) (bool, error) {
	alert, ok := m.store.Get(id)
	if !ok {
		return false, nil
	}
	if alert.Acknowledged {
		return true, nil
	}

	if m.remote != nil {
		if err := m.remote.AcknowledgeAlert(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("alert_id", id).Msg("acknowledge rejected upstream")
			return false, err
		}
	}

	// Re-read in case the stream replaced the alert while the call was out;
	// the newest payload keeps winning, only the ack bits change. A changed
	// CreatedAt means the id was re-emitted as a fresh alert mid-call, and
	// the confirmation belongs to the old one: leave the fresh alert alone.
	current, ok := m.store.Get(id)
	if !ok {
		current = alert
	}
	if !current.CreatedAt.Equal(alert.CreatedAt) {
		m.logger.Info().Str("alert_id", id).Msg("alert re-emitted during acknowledge, keeping fresh state")
		return true, nil
	}
	now := m.now()
	current.Acknowledged = true
	current.AcknowledgedAt = &now
	m.store.Upsert(current)

	m.logger.Info().Str("alert_id", id).Msg("alert acknowledged")
	return true, nil
}

// Dismiss hides an alert from List results immediately and locally. The
// backing entry stays cached so a later upstream re-emission can bring it
// back as new state.
func (m *Manager) Dismiss(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed[id] = struct{}{}
}

// List returns the visible alerts ordered severity-descending, then most
// recent first, with id as the final tie-break.
func (m *Manager) List(f ListFilter) []record.Alert {
	m.mu.Lock()
	dismissed := make(map[string]struct{}, len(m.dismissed))
	for id := range m.dismissed {
		dismissed[id] = struct{}{}
	}
	m.mu.Unlock()

	all := m.store.All()
	out := make([]record.Alert, 0, len(all))
	for _, a := range all {
		if _, hidden := dismissed[a.ID]; hidden {
			continue
		}
		if !f.matches(a) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Len returns the number of cached alerts, dismissed ones included.
func (m *Manager) Len() int {
	return m.store.Len()
}

func (f ListFilter) matches(a record.Alert) bool {
	if len(f.Severities) > 0 {
		found := false
		for _, s := range f.Severities {
			if s == a.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Instrument != "" && f.Instrument != a.Instrument {
		return false
	}
	if f.Acknowledged != nil && *f.Acknowledged != a.Acknowledged {
		return false
	}
	return true
}
