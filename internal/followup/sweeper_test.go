package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/inbox-platform/internal/conversation"
)

type stubLister struct {
	snaps []conversation.Snapshot
	err   error

	gotCutoff time.Time
	gotLimit  int
}

func (s *stubLister) ListSilentSince(_ context.Context, cutoff time.Time, limit int) ([]conversation.Snapshot, error) {
	s.gotCutoff = cutoff
	s.gotLimit = limit
	return s.snaps, s.err
}

type captureFollowUpNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureFollowUpNotifier) NotifyFollowUp(_ context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func silentSnapshot(now time.Time, silentFor time.Duration) conversation.Snapshot {
	last := now.Add(-silentFor)
	return conversation.Snapshot{
		ID:                   uuid.New(),
		TenantID:             uuid.New(),
		QueueStatus:          conversation.StatusInService,
		LastPatientMessageAt: &last,
	}
}

func newTestSweeper(lister *stubLister, notifier *captureFollowUpNotifier, thresholds ThresholdSource, now time.Time) *Sweeper {
	eval := NewEvaluator(thresholds)
	eval.now = func() time.Time { return now }
	return NewSweeper(SweeperConfig{
		Store:     lister,
		Evaluator: eval,
		Notifier:  notifier,
		MinWindow: 5 * time.Minute,
		BatchSize: 100,
		Now:       func() time.Time { return now },
	})
}

func TestProcessSilentAlertsPastWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := silentSnapshot(now, 3*time.Hour)
	lister := &stubLister{snaps: []conversation.Snapshot{snap}}
	notifier := &captureFollowUpNotifier{}

	sweeper := newTestSweeper(lister, notifier, nil, now)
	alerted, err := sweeper.ProcessSilent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, alerted)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, snap.ID, notifier.alerts[0].ConversationID)
	assert.Equal(t, snap.TenantID, notifier.alerts[0].TenantID)
	assert.Equal(t, *snap.LastPatientMessageAt, notifier.alerts[0].LastMessageAt)

	assert.Equal(t, now.Add(-5*time.Minute), lister.gotCutoff)
	assert.Equal(t, 100, lister.gotLimit)
}

func TestProcessSilentRespectsTenantWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Silent 30 minutes: past a 5-minute store cutoff but inside the
	// tenant's 60-minute window.
	snap := silentSnapshot(now, 30*time.Minute)
	lister := &stubLister{snaps: []conversation.Snapshot{snap}}
	notifier := &captureFollowUpNotifier{}

	sweeper := newTestSweeper(lister, notifier, &stubThresholds{minutes: 60}, now)
	alerted, err := sweeper.ProcessSilent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, alerted)
	assert.Empty(t, notifier.alerts)
}

func TestProcessSilentContinuesPastNotifyFailure(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lister := &stubLister{snaps: []conversation.Snapshot{
		silentSnapshot(now, 3*time.Hour),
		silentSnapshot(now, 4*time.Hour),
	}}
	notifier := &captureFollowUpNotifier{err: errors.New("smtp down")}

	sweeper := newTestSweeper(lister, notifier, nil, now)
	alerted, err := sweeper.ProcessSilent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, alerted, "failed notifications must not count as alerts")
}

func TestProcessSilentPropagatesListError(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lister := &stubLister{err: errors.New("pg down")}
	notifier := &captureFollowUpNotifier{}

	sweeper := newTestSweeper(lister, notifier, nil, now)
	_, err := sweeper.ProcessSilent(context.Background())
	assert.Error(t, err)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lister := &stubLister{}
	notifier := &captureFollowUpNotifier{}
	sweeper := newTestSweeper(lister, notifier, nil, now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
