package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
)

type memLegacy struct {
	rows    []repository.LegacyArticleRow
	written map[string]models.LifecycleState
	failID  string
}

func (m *memLegacy) ListLegacy(ctx context.Context, limit int) ([]repository.LegacyArticleRow, error) {
	out := make([]repository.LegacyArticleRow, 0, limit)
	for _, row := range m.rows {
		if _, done := m.written[row.ID]; done {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memLegacy) SetDerivedState(ctx context.Context, id string, state models.LifecycleState) (bool, error) {
	if id == m.failID {
		return false, errors.New("connection reset")
	}
	if _, done := m.written[id]; done {
		return false, nil
	}
	m.written[id] = state
	return true, nil
}

func legacyRows() []repository.LegacyArticleRow {
	reason := "out of scope"
	return []repository.LegacyArticleRow{
		{ID: "a1", Submitted: true},
		{ID: "a2", Submitted: true, Approved: true},
		{ID: "a3", Submitted: true, Approved: true, PaymentSubmitted: true, PaymentDone: true, Published: true},
		{ID: "a4", Submitted: true, RejectionReason: &reason},
		{ID: "a5"},
	}
}

func TestBackfillWritesEveryRowInBatches(t *testing.T) {
	store := &memLegacy{rows: legacyRows(), written: map[string]models.LifecycleState{}}

	rep, err := backfill(context.Background(), store, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Updated)
	assert.Equal(t, models.StatePendingReview, store.written["a1"])
	assert.Equal(t, models.StateApproved, store.written["a2"])
	assert.Equal(t, models.StatePublished, store.written["a3"])
	assert.Equal(t, models.StateRejected, store.written["a4"])
	assert.Equal(t, models.StateDraft, store.written["a5"])
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	store := &memLegacy{rows: legacyRows(), written: map[string]models.LifecycleState{}}

	rep, err := backfill(context.Background(), store, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Scanned)
	assert.Zero(t, rep.Updated)
	assert.Empty(t, store.written)
	assert.Equal(t, 1, rep.ByState[models.StatePublished])
}

func TestBackfillStopsOnWriteError(t *testing.T) {
	store := &memLegacy{rows: legacyRows(), written: map[string]models.LifecycleState{}, failID: "a2"}

	rep, err := backfill(context.Background(), store, 10, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article a2")
	assert.Equal(t, 1, rep.Updated)
}
