package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testItem(tenantID, name, itemType string) model.Item {
	return model.Item{
		TenantID: tenantID,
		Fields: map[string]model.Field{
			model.FieldName:     {Value: name, Confidence: 0.9, Provenance: model.ProvenanceExplicit},
			model.FieldItemType: {Value: itemType, Confidence: 0.9, Provenance: model.ProvenanceExplicit},
		},
	}
}

// --- Templates ---

func TestSQLite_Template_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tpl := &model.ExtractionTemplate{
		TenantID: "tenant-a",
		Name:     "monthly software export",
		Signature: model.TemplateSignature{
			ColumnPatterns: []string{`^produktname$`, `^kosten$`},
			HeaderKeywords: []string{"produktname", "kosten"},
		},
		Mappings: []model.FieldMapping{
			{SourceColumn: "Produktname", TargetField: model.FieldName, Confidence: 0.95},
		},
	}
	require.NoError(t, st.SaveTemplate(ctx, tpl))
	require.NotEmpty(t, tpl.ID)

	got, err := st.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "monthly software export", got.Name)
	assert.Len(t, got.Mappings, 1)
	assert.Equal(t, model.FieldName, got.Mappings[0].TargetField)
}

func TestSQLite_Template_SaveTwiceUpdates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tpl := &model.ExtractionTemplate{TenantID: "tenant-a", Name: "v1"}
	require.NoError(t, st.SaveTemplate(ctx, tpl))

	tpl.Name = "v2"
	tpl.UsageCount = 3
	require.NoError(t, st.SaveTemplate(ctx, tpl))

	got, err := st.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)
	assert.Equal(t, 3, got.UsageCount)

	all, err := st.ListTemplates(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_Template_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTemplate(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_Template_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tpl := &model.ExtractionTemplate{TenantID: "tenant-a", Name: "short lived"}
	require.NoError(t, st.SaveTemplate(ctx, tpl))
	require.NoError(t, st.DeleteTemplate(ctx, tpl.ID))

	err := st.DeleteTemplate(ctx, tpl.ID)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_Template_ListScopedByTenant(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveTemplate(ctx, &model.ExtractionTemplate{TenantID: "tenant-a", Name: "a"}))
	require.NoError(t, st.SaveTemplate(ctx, &model.ExtractionTemplate{TenantID: "tenant-b", Name: "b"}))

	got, err := st.ListTemplates(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

// --- Corrections ---

func TestSQLite_Corrections_SaveAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Correction{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Original:  testItem("tenant-a", "Slakc", "software"),
		Corrected: testItem("tenant-a", "Slack", "software"),
		Changed:   []string{model.FieldName},
	}
	require.NoError(t, st.SaveCorrection(ctx, c))
	require.NoError(t, st.SaveCorrection(ctx, &model.Correction{
		TenantID:  "tenant-a",
		SessionID: "sess-2",
		Changed:   []string{model.FieldVendor},
	}))

	bySession, err := st.ListCorrections(ctx, "tenant-a", "sess-1")
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, []string{model.FieldName}, bySession[0].Changed)
	assert.Equal(t, "Slack", bySession[0].Corrected.StringValue(model.FieldName))

	all, err := st.ListCorrections(ctx, "tenant-a", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Items ---

func TestSQLite_Items_SaveAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	items := []model.Item{
		testItem("tenant-a", "Slack", "software"),
		testItem("tenant-a", "Dell R740", "hardware"),
		testItem("tenant-b", "Jira", "software"),
	}
	n, err := st.SaveItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := st.ListItems(ctx, ItemFilter{TenantID: "tenant-a"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	hw, err := st.ListItems(ctx, ItemFilter{TenantID: "tenant-a", ItemType: "hardware"})
	require.NoError(t, err)
	require.Len(t, hw, 1)
	assert.Equal(t, "Dell R740", hw[0].StringValue(model.FieldName))
}

func TestSQLite_Items_UpsertByID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("tenant-a", "Slack", "software")
	item.ID = "fixed-id"
	_, err := st.SaveItems(ctx, []model.Item{item})
	require.NoError(t, err)

	item.Fields[model.FieldName] = model.Field{Value: "Slack Enterprise", Confidence: 0.95, Provenance: model.ProvenanceExplicit}
	_, err = st.SaveItems(ctx, []model.Item{item})
	require.NoError(t, err)

	got, err := st.ListItems(ctx, ItemFilter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Slack Enterprise", got[0].StringValue(model.FieldName))
}

// --- Review queue ---

func TestSQLite_ReviewQueue_EnqueueListResolve(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("tenant-a", "CRM Pro", "software")
	entry := &model.ReviewQueueItem{
		TenantID: "tenant-a",
		Reason:   "possible duplicate",
		Item:     item,
	}
	require.NoError(t, st.EnqueueReview(ctx, entry))

	pending, err := st.ListReview(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "possible duplicate", pending[0].Reason)

	require.NoError(t, st.ResolveReview(ctx, entry.ID))

	pending, err = st.ListReview(ctx, "tenant-a", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = st.ResolveReview(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Ingestion cache ---

func TestSQLite_IngestionCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	items := []model.Item{testItem("tenant-a", "Slack", "software")}
	require.NoError(t, st.SetCachedIngestion(ctx, "tenant-a", "sha256:abc", items, time.Hour))

	got, err := st.GetCachedIngestion(ctx, "tenant-a", "sha256:abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Slack", got.Items[0].StringValue(model.FieldName))
}

func TestSQLite_IngestionCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCachedIngestion(context.Background(), "tenant-a", "sha256:nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_IngestionCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedIngestion(ctx, "tenant-a", "sha256:old", nil, -time.Hour))

	got, err := st.GetCachedIngestion(ctx, "tenant-a", "sha256:old")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredIngestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_IngestionCache_TenantScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedIngestion(ctx, "tenant-a", "sha256:abc", nil, time.Hour))

	got, err := st.GetCachedIngestion(ctx, "tenant-b", "sha256:abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Session snapshots ---

func TestSQLite_Session_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &model.Session{
		ID:        "sess-1",
		TenantID:  "tenant-a",
		Status:    model.SessionCompleted,
		Confirmed: []model.Item{testItem("tenant-a", "Slack", "software")},
		BatchSize: 10,
	}
	require.NoError(t, st.SaveSession(ctx, sess))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	require.Len(t, got.Confirmed, 1)
	assert.Equal(t, "Slack", got.Confirmed[0].StringValue(model.FieldName))

	// Saving again overwrites the snapshot.
	sess.Status = model.SessionCancelled
	require.NoError(t, st.SaveSession(ctx, sess))
	got, err = st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, got.Status)
}

func TestSQLite_Session_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSession(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Dead letters ---

func TestSQLite_DeadLetters_SaveAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveDeadLetter(ctx, &resilience.DLQEntry{
		TenantID:    "t1",
		Document:    "broken.xlsx",
		Checksum:    "sha256:abc",
		Error:       "no extractable structure",
		ErrorType:   "permanent",
		FailedStage: "extract",
		MaxRetries:  3,
	}))
	require.NoError(t, st.SaveDeadLetter(ctx, &resilience.DLQEntry{
		TenantID:    "t1",
		Document:    "scan.pdf",
		Error:       "inference: recognize document: i/o timeout",
		ErrorType:   "transient",
		FailedStage: "extract",
		MaxRetries:  3,
	}))
	require.NoError(t, st.SaveDeadLetter(ctx, &resilience.DLQEntry{
		TenantID:  "t2",
		Document:  "other.csv",
		ErrorType: "permanent",
	}))

	all, err := st.ListDeadLetters(ctx, "t1", resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2, "scoped to the tenant")

	transient, err := st.ListDeadLetters(ctx, "t1", resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, transient, 1)
	assert.Equal(t, "scan.pdf", transient[0].Document)
	assert.Equal(t, "extract", transient[0].FailedStage)
	assert.True(t, transient[0].CanRetry())
}
