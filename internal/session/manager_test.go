package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/confidence"
	"github.com/stacklens/catalog-ingest/internal/model"
)

func newManager(batchSize, threshold int) *Manager {
	return NewManager(NewMemoryRepository(), batchSize, threshold, time.Hour)
}

func makeItems(n int, confidence float64) []model.Item {
	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			ID:       fmt.Sprintf("item-%03d", i),
			TenantID: "t1",
			Fields: map[string]model.Field{
				model.FieldName:     {Value: fmt.Sprintf("Tool %d", i), Confidence: confidence},
				model.FieldItemType: {Value: "software", Confidence: confidence},
			},
		}
	}
	return items
}

func TestSamplingModeLatch(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, err := m.Create(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(60, 0.5)))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.SamplingMode, "60 items crosses the threshold of 50")

	// Drain most items; sampling mode must not revert.
	_, err = m.BulkConfirm(ctx, s.ID, 0.0)
	require.NoError(t, err)
	got, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Pending)
	assert.True(t, got.SamplingMode, "latch never reverts")
}

func TestNextBatchMovesItems(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(12, 0.5)))

	batch, err := m.NextBatch(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, batch, 5)

	got, _ := m.Get(ctx, s.ID)
	assert.Equal(t, model.SessionBatchMode, got.Status)
	assert.Len(t, got.Pending, 7)
	assert.Len(t, got.CurrentBatch, 5)

	// Pulling again without feedback returns the same batch.
	again, err := m.NextBatch(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, batch[0].ID, again[0].ID)
	assert.Len(t, again, 5)
}

func TestProcessFeedbackAndCompletion(t *testing.T) {
	t.Parallel()

	m := newManager(2, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(2, 0.5)))

	batch, err := m.NextBatch(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	corrections, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackConfirm},
		{ItemID: batch[1].ID, Action: model.FeedbackReject},
	})
	require.NoError(t, err)
	assert.Empty(t, corrections, "confirm and reject derive no corrections")

	got, _ := m.Get(ctx, s.ID)
	assert.Len(t, got.Confirmed, 1)
	assert.Len(t, got.Rejected, 1)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.NotEmpty(t, got.Learning.Summary)
}

func TestConfirmIdempotent(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(5, 0.5)))

	batch, _ := m.NextBatch(ctx, s.ID)
	fb := []model.Feedback{{ItemID: batch[0].ID, Action: model.FeedbackConfirm}}
	_, err := m.ProcessFeedback(ctx, s.ID, fb)
	require.NoError(t, err)
	_, err = m.ProcessFeedback(ctx, s.ID, fb)
	require.NoError(t, err, "replayed feedback")

	got, _ := m.Get(ctx, s.ID)
	assert.Len(t, got.Confirmed, 1, "confirmed count unchanged by replay")
}

func TestModifyFeedbackUsesModifiedItem(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(1, 0.5)))
	batch, _ := m.NextBatch(ctx, s.ID)

	modified := batch[0]
	modified.Fields = map[string]model.Field{
		model.FieldName:     {Value: "Corrected Name", Confidence: 1},
		model.FieldItemType: {Value: "hardware", Confidence: 1},
	}
	corrections, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackModify, Modified: &modified},
	})
	require.NoError(t, err)

	got, _ := m.Get(ctx, s.ID)
	require.Len(t, got.Confirmed, 1)
	assert.Equal(t, "Corrected Name", got.Confirmed[0].StringValue(model.FieldName))
	assert.Equal(t, 1, got.Learning.TypeDistribution["hardware"])

	require.Len(t, corrections, 1)
	assert.Equal(t, s.ID, corrections[0].SessionID)
	assert.Equal(t, "t1", corrections[0].TenantID)
	assert.Contains(t, corrections[0].Changed, model.FieldName)
	assert.Equal(t, "Corrected Name", corrections[0].Corrected.StringValue(model.FieldName))
}

func TestSetsStayDisjoint(t *testing.T) {
	t.Parallel()

	m := newManager(3, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(9, 0.5)))

	batch, _ := m.NextBatch(ctx, s.ID)
	_, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackConfirm},
	})
	require.NoError(t, err)

	got, _ := m.Get(ctx, s.ID)
	seen := map[string]int{}
	for _, set := range [][]model.Item{got.Pending, got.CurrentBatch, got.Confirmed, got.Rejected} {
		for _, it := range set {
			seen[it.ID]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s appears in multiple sets", id)
	}
	assert.Equal(t, 9, got.TotalItems())
}

func TestBulkConfirmThreshold(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")

	high := makeItems(3, 0.9)
	low := makeItems(2, 0.4)
	for i := range low {
		low[i].ID = fmt.Sprintf("low-%d", i)
	}
	require.NoError(t, m.AddItems(ctx, s.ID, append(high, low...)))

	moved, err := m.BulkConfirm(ctx, s.ID, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 3, moved)

	got, _ := m.Get(ctx, s.ID)
	assert.Len(t, got.Confirmed, 3)
	assert.Len(t, got.Pending, 2)
	assert.Equal(t, model.SessionActive, got.Status) // not drained, stays open
}

func TestConfirmAllAppliesBiasCorrection(t *testing.T) {
	t.Parallel()

	m := newManager(10, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")

	// Confirm 8 software and 1 hardware to build a >70/30 type skew. A
	// low-confidence straggler with a deviating type stays pending.
	seed := makeItems(9, 0.9)
	seed[8].Fields[model.FieldItemType] = model.Field{Value: "hardware", Confidence: 0.9}
	straggler := model.Item{
		ID: "straggler", TenantID: "t1",
		Fields: map[string]model.Field{
			model.FieldName:     {Value: "Mystery", Confidence: 0.3},
			model.FieldItemType: {Value: "hardware", Confidence: 0.3},
		},
	}
	require.NoError(t, m.AddItems(ctx, s.ID, append(seed, straggler)))

	confirmed, err := m.BulkConfirm(ctx, s.ID, 0.8)
	require.NoError(t, err)
	require.Equal(t, 9, confirmed)

	moved, err := m.ConfirmAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, _ := m.Get(ctx, s.ID)
	assert.Equal(t, model.SessionCompleted, got.Status)

	var corrected *model.Item
	for i := range got.Confirmed {
		if got.Confirmed[i].ID == "straggler" {
			corrected = &got.Confirmed[i]
		}
	}
	require.NotNil(t, corrected)
	assert.Equal(t, "software", corrected.StringValue(model.FieldItemType))
	assert.Equal(t, model.ProvenanceLearned, corrected.Fields[model.FieldItemType].Provenance)
}

func TestConfirmAllValueSubstitution(t *testing.T) {
	t.Parallel()

	m := newManager(10, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")

	bad := model.Item{ID: "bad", Fields: map[string]model.Field{
		model.FieldName:     {Value: "CRM", Confidence: 0.9},
		model.FieldItemType: {Value: "software", Confidence: 0.9},
		model.FieldVendor:   {Value: "Acme?", Confidence: 0.4},
	}}
	good := model.Item{ID: "good", Fields: map[string]model.Field{
		model.FieldName:     {Value: "CRM", Confidence: 0.9},
		model.FieldItemType: {Value: "software", Confidence: 0.9},
		model.FieldVendor:   {Value: "Acme GmbH", Confidence: 0.9},
	}}
	rest := model.Item{ID: "rest", Fields: map[string]model.Field{
		model.FieldName:     {Value: "Other", Confidence: 0.9},
		model.FieldItemType: {Value: "software", Confidence: 0.9},
		model.FieldVendor:   {Value: "Acme?", Confidence: 0.4},
	}}
	require.NoError(t, m.AddItems(ctx, s.ID, []model.Item{bad, good, rest}))

	batch, _ := m.NextBatch(ctx, s.ID)
	require.Len(t, batch, 3)
	_, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: "bad", Action: model.FeedbackReject},
		{ItemID: "good", Action: model.FeedbackConfirm},
	})
	require.NoError(t, err)

	_, err = m.ConfirmAll(ctx, s.ID)
	require.NoError(t, err)

	got, _ := m.Get(ctx, s.ID)
	var restOut *model.Item
	for i := range got.Confirmed {
		if got.Confirmed[i].ID == "rest" {
			restOut = &got.Confirmed[i]
		}
	}
	require.NotNil(t, restOut)
	assert.Equal(t, "Acme GmbH", restOut.StringValue(model.FieldVendor))
	assert.Equal(t, model.ProvenanceLearned, restOut.Fields[model.FieldVendor].Provenance)
}

func TestCancelAndTerminalGuards(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.Cancel(ctx, s.ID))

	err := m.AddItems(ctx, s.ID, makeItems(1, 0.5))
	assert.Error(t, err)
	assert.Error(t, m.Cancel(ctx, s.ID), "cancel is not re-enterable")
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	_, err := m.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	m := NewManager(repo, 5, 50, time.Millisecond)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")

	dropped := repo.Sweep(ctx, time.Now().Add(time.Minute))
	assert.Equal(t, 1, dropped)
	_, err := m.Get(ctx, s.ID)
	assert.Error(t, err)
}

func TestAdjusterFlagsHistoricallyWrongFields(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50).WithAdjuster(confidence.NewAdjuster(0, 0, 0, 0))
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")

	// Reject a confident item so its fields accrue negative history.
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(1, 0.9)))
	batch, _ := m.NextBatch(ctx, s.ID)
	_, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackReject},
	})
	require.NoError(t, err)

	// New items for the same tenant and fields now carry the review flag
	// despite high extraction confidence.
	s2, _ := m.Create(ctx, "t1")
	fresh := makeItems(1, 0.95)
	fresh[0].ID = "fresh-001"
	require.NoError(t, m.AddItems(ctx, s2.ID, fresh))

	got, _ := m.Get(ctx, s2.ID)
	require.Len(t, got.Pending, 1)
	assert.True(t, got.Pending[0].Fields[model.FieldName].NeedsReview)
	assert.True(t, got.Pending[0].Fields[model.FieldItemType].NeedsReview)
}

func TestGetReturnsDetachedSnapshot(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(5, 0.9)))
	batch, err := m.NextBatch(ctx, s.ID)
	require.NoError(t, err)

	snap, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snap.CurrentBatch, len(batch))
	wantFirst := snap.CurrentBatch[0].ID

	// Feedback shifts items out of the live batch slice in place. The
	// snapshot must not see any of it.
	_, err = m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackConfirm},
		{ItemID: batch[1].ID, Action: model.FeedbackReject},
	})
	require.NoError(t, err)

	assert.Len(t, snap.CurrentBatch, len(batch))
	assert.Equal(t, wantFirst, snap.CurrentBatch[0].ID)
	assert.Empty(t, snap.Confirmed)
	assert.Empty(t, snap.Learning.TypeDistribution)

	// Writes into the snapshot never reach the stored session.
	snap.CurrentBatch[0].Fields[model.FieldName] = model.Field{Value: "tampered"}
	snap.Learning.TypeDistribution["tampered"] = 1
	fresh, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", fresh.Confirmed[0].Fields[model.FieldName].Value)
	assert.NotContains(t, fresh.Learning.TypeDistribution, "tampered")
}

func TestGetConcurrentWithFeedback(t *testing.T) {
	t.Parallel()

	m := newManager(4, 500)
	ctx := context.Background()
	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(100, 0.9)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			batch, err := m.NextBatch(ctx, s.ID)
			if err != nil || len(batch) == 0 {
				return
			}
			fb := make([]model.Feedback, 0, len(batch))
			for _, it := range batch {
				fb = append(fb, model.Feedback{ItemID: it.ID, Action: model.FeedbackConfirm})
			}
			if _, err := m.ProcessFeedback(ctx, s.ID, fb); err != nil {
				return
			}
		}
	}()

	// Readers walk snapshots while the writer drains the session.
	for i := 0; i < 200; i++ {
		snap, err := m.Get(ctx, s.ID)
		require.NoError(t, err)
		for _, it := range snap.CurrentBatch {
			_ = it.Fields[model.FieldName].Value
		}
		for _, it := range snap.Confirmed {
			_ = it.Fields[model.FieldName].Value
		}
	}
	<-done
}

func TestSteeringFromLatestSession(t *testing.T) {
	t.Parallel()

	m := newManager(5, 50)
	ctx := context.Background()

	assert.Empty(t, m.Steering(ctx, "t1"), "no sessions yet")

	s, _ := m.Create(ctx, "t1")
	require.NoError(t, m.AddItems(ctx, s.ID, makeItems(3, 0.9)))
	batch, _ := m.NextBatch(ctx, s.ID)
	require.Len(t, batch, 3)
	// Leave one item unreviewed so the session stays cancellable.
	_, err := m.ProcessFeedback(ctx, s.ID, []model.Feedback{
		{ItemID: batch[0].ID, Action: model.FeedbackConfirm},
		{ItemID: batch[1].ID, Action: model.FeedbackConfirm},
	})
	require.NoError(t, err)

	steering := m.Steering(ctx, "t1")
	assert.Contains(t, steering, "types: software")

	// Other tenants never see it, and a cancelled session stops steering.
	assert.Empty(t, m.Steering(ctx, "t2"))
	require.NoError(t, m.Cancel(ctx, s.ID))
	assert.Empty(t, m.Steering(ctx, "t1"))
}
