package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-feed-sync/internal/record"
)

type fakeRemote struct {
	err    error
	calls  []string
	onCall func(id string)
}

func (f *fakeRemote) AcknowledgeAlert(ctx context.Context, id string) error {
	f.calls = append(f.calls, id)
	if f.onCall != nil {
		f.onCall(id)
	}
	return f.err
}

func alertAt(id string, sev record.Severity, created time.Time) record.Alert {
	return record.Alert{ID: id, Severity: sev, Message: "m-" + id, CreatedAt: created}
}

func TestAddUpsertsByID(t *testing.T) {
	m := NewManager(nil, 100, zerolog.Nop())
	created := time.Now().UTC()

	m.Add(alertAt("a1", record.SeverityInfo, created))
	m.Add(alertAt("a1", record.SeverityCritical, created))

	require.Equal(t, 1, m.Len())
	list := m.List(ListFilter{})
	require.Len(t, list, 1)
	assert.Equal(t, record.SeverityCritical, list[0].Severity)
}

func TestAcknowledgeMutatesAfterConfirm(t *testing.T) {
	remote := &fakeRemote{}
	m := NewManager(remote, 100, zerolog.Nop())
	m.Add(alertAt("a1", record.SeverityWarning, time.Now().UTC()))

	ok, err := m.Acknowledge(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a1"}, remote.calls)

	list := m.List(ListFilter{})
	require.Len(t, list, 1)
	assert.True(t, list[0].Acknowledged)
	require.NotNil(t, list[0].AcknowledgedAt)
}

func TestAcknowledgeFailureLeavesLocalState(t *testing.T) {
	remote := &fakeRemote{err: errors.New("504 from orchestrator")}
	m := NewManager(remote, 100, zerolog.Nop())
	m.Add(alertAt("a1", record.SeverityWarning, time.Now().UTC()))

	ok, err := m.Acknowledge(context.Background(), "a1")
	require.Error(t, err)
	assert.False(t, ok)

	list := m.List(ListFilter{})
	require.Len(t, list, 1)
	assert.False(t, list[0].Acknowledged, "no optimistic mutation on remote failure")
	assert.Nil(t, list[0].AcknowledgedAt)
}

func TestAcknowledgeUnknownID(t *testing.T) {
	remote := &fakeRemote{}
	m := NewManager(remote, 100, zerolog.Nop())

	ok, err := m.Acknowledge(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, remote.calls, "no remote call for an unknown alert")
}

func TestAcknowledgeIsMonotonic(t *testing.T) {
	remote := &fakeRemote{}
	m := NewManager(remote, 100, zerolog.Nop())
	m.Add(alertAt("a1", record.SeverityWarning, time.Now().UTC()))

	_, err := m.Acknowledge(context.Background(), "a1")
	require.NoError(t, err)
	ok, err := m.Acknowledge(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, remote.calls, 1, "second acknowledge short-circuits locally")
}

func TestAcknowledgeSkipsAlertReemittedMidConfirm(t *testing.T) {
	remote := &fakeRemote{}
	m := NewManager(remote, 100, zerolog.Nop())
	base := time.Now().UTC()
	m.Add(alertAt("a1", record.SeverityWarning, base))

	// The stream re-emits the same id as a fresh alert while the remote
	// confirmation is in flight; that fresh alert must stay unacknowledged.
	remote.onCall = func(string) {
		m.Add(alertAt("a1", record.SeverityCritical, base.Add(time.Minute)))
	}

	ok, err := m.Acknowledge(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	list := m.List(ListFilter{})
	require.Len(t, list, 1)
	assert.Equal(t, record.SeverityCritical, list[0].Severity)
	assert.False(t, list[0].Acknowledged, "fresh re-emission outlives the stale confirmation")
	assert.Nil(t, list[0].AcknowledgedAt)
}

func TestDismissIsLocalAndImmediate(t *testing.T) {
	m := NewManager(nil, 100, zerolog.Nop())
	m.Add(alertAt("a1", record.SeverityInfo, time.Now().UTC()))

	m.Dismiss("a1")

	assert.Empty(t, m.List(ListFilter{}))
	assert.Equal(t, 1, m.Len(), "dismiss hides from the view, backing entry remains")
}

func TestDismissedAlertReappearsOnReemission(t *testing.T) {
	m := NewManager(nil, 100, zerolog.Nop())
	m.Add(alertAt("a1", record.SeverityInfo, time.Now().UTC()))
	m.Dismiss("a1")
	require.Empty(t, m.List(ListFilter{}))

	// Identical id arrives again from the stream: treated as new state.
	m.Add(alertAt("a1", record.SeverityInfo, time.Now().UTC()))

	list := m.List(ListFilter{})
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}

func TestListOrderSeverityThenRecency(t *testing.T) {
	m := NewManager(nil, 100, zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m.Add(alertAt("old-critical", record.SeverityCritical, base))
	m.Add(alertAt("new-info", record.SeverityInfo, base.Add(3*time.Hour)))
	m.Add(alertAt("new-critical", record.SeverityCritical, base.Add(time.Hour)))
	m.Add(alertAt("warning", record.SeverityWarning, base.Add(2*time.Hour)))

	list := m.List(ListFilter{})
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"new-critical", "old-critical", "warning", "new-info"}, ids)
}

func TestListFilterSeverityAndAcked(t *testing.T) {
	m := NewManager(&fakeRemote{}, 100, zerolog.Nop())
	base := time.Now().UTC()
	m.Add(alertAt("c1", record.SeverityCritical, base))
	m.Add(alertAt("i1", record.SeverityInfo, base))
	_, err := m.Acknowledge(context.Background(), "i1")
	require.NoError(t, err)

	crit := m.List(ListFilter{Severities: []record.Severity{record.SeverityCritical}})
	require.Len(t, crit, 1)
	assert.Equal(t, "c1", crit[0].ID)

	unacked := false
	open := m.List(ListFilter{Acknowledged: &unacked})
	require.Len(t, open, 1)
	assert.Equal(t, "c1", open[0].ID)
}

func TestBoundedBacklogEvictsOldest(t *testing.T) {
	m := NewManager(nil, 2, zerolog.Nop())
	base := time.Now().UTC()
	m.Add(alertAt("a1", record.SeverityInfo, base))
	m.Add(alertAt("a2", record.SeverityInfo, base))
	m.Add(alertAt("a3", record.SeverityInfo, base))

	assert.Equal(t, 2, m.Len())
	list := m.List(ListFilter{})
	for _, a := range list {
		assert.NotEqual(t, "a1", a.ID, "oldest alert evicted at capacity")
	}
}
