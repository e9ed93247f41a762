package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

func TestAnalyzeInfersTypes(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil, 50)
	sch, err := a.Analyze(context.Background(), Table{
		HeaderRows: [][]string{{"Name", "Price", "Licenses", "Renewal Date", "Active"}},
		Rows: [][]string{
			{"Slack", "€8.75", "120", "2026-03-01", "true"},
			{"Zoom", "€13.99", "80", "2026-06-15", "true"},
			{"Asana", "€10.99", "45", "2026-01-31", "false"},
		},
	}, DocumentInfo{Tables: 1})
	require.NoError(t, err)

	require.Len(t, sch.Columns, 5)
	assert.Equal(t, model.ColumnCurrency, sch.Columns[1].Type)
	assert.Equal(t, model.ColumnInteger, sch.Columns[2].Type)
	assert.Equal(t, model.ColumnDate, sch.Columns[3].Type)
	assert.Equal(t, model.ColumnBool, sch.Columns[4].Type)
	assert.Equal(t, "renewal_date", sch.Columns[3].NormalizedName)
	assert.Equal(t, model.StrategyTableFocused, sch.Strategy)
	assert.False(t, sch.Degraded)
}

func TestAnalyzeNullRatio(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil, 50)
	sch, err := a.Analyze(context.Background(), Table{
		HeaderRows: [][]string{{"Name", "Vendor"}},
		Rows: [][]string{
			{"A", "Acme"},
			{"B", ""},
			{"C", ""},
			{"D", "Acme"},
		},
	}, DocumentInfo{Tables: 1})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, sch.Columns[1].NullRatio, 1e-9)
}

func TestResolveHeadersMultiLevel(t *testing.T) {
	t.Parallel()

	cols := ResolveHeaders([][]string{
		{"Item", "Costs", "", "Contract"},
		{"Name", "Monthly", "Annual", "End"},
	})

	require.Len(t, cols, 4)
	assert.Equal(t, "Item > Name", cols[0].SourceName)
	assert.Equal(t, "Costs > Monthly", cols[1].SourceName)
	// Merged cell "Costs" propagates to the annual column.
	assert.Equal(t, "Costs > Annual", cols[2].SourceName)
	assert.Equal(t, "Contract > End", cols[3].SourceName)
	assert.Equal(t, "costs_annual", cols[2].NormalizedName)
}

func TestChooseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info DocumentInfo
		want model.ExtractionStrategy
	}{
		{"tables win", DocumentInfo{Tables: 2, Sections: 5}, model.StrategyTableFocused},
		{"sections next", DocumentInfo{Sections: 3}, model.StrategySectionTargeted},
		{"large structureless skipped", DocumentInfo{PageCount: 80}, model.StrategySkip},
		{"fallback", DocumentInfo{Sections: 1, PageCount: 3}, model.StrategyFullDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ChooseStrategy(tt.info))
		})
	}
}

func TestAnalyzeEscalatesAmbiguousHeaders(t *testing.T) {
	t.Parallel()

	inf := &mockInferenceClient{}
	inf.On("GuessSchema", mock.Anything, mock.Anything).Return(&inference.SchemaHypothesis{
		Columns: []inference.ColumnGuess{
			{Name: "Product Name", Type: "string", Confidence: 0.9},
			{Name: "Monthly Cost", Type: "currency", Confidence: 0.85},
		},
	}, nil)

	a := NewAnalyzer(inf, 50)
	// Numeric-looking header row scores below the ambiguity threshold.
	sch, err := a.Analyze(context.Background(), Table{
		HeaderRows: [][]string{{"1200", "88.50"}},
		Rows: [][]string{
			{"Slack", "€8.75"},
			{"Zoom", "€13.99"},
		},
	}, DocumentInfo{Tables: 1})
	require.NoError(t, err)

	assert.Equal(t, "product_name", sch.Columns[0].NormalizedName)
	assert.Equal(t, model.ColumnCurrency, sch.Columns[1].Type)
	assert.False(t, sch.Degraded)
	inf.AssertExpectations(t)
}

func TestAnalyzeDegradesOnInferenceFailure(t *testing.T) {
	t.Parallel()

	inf := &mockInferenceClient{}
	inf.On("GuessSchema", mock.Anything, mock.Anything).
		Return(nil, &inference.MalformedError{Operation: "schema", RawText: "n/a"})

	a := NewAnalyzer(inf, 50)
	sch, err := a.Analyze(context.Background(), Table{
		HeaderRows: [][]string{{"1", "2"}},
		Rows:       [][]string{{"x", "y"}},
	}, DocumentInfo{Tables: 1})
	require.NoError(t, err)

	assert.True(t, sch.Degraded)
	assert.Len(t, sch.Columns, 2)
}

func TestAnalyzeEmptyTable(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil, 50)
	_, err := a.Analyze(context.Background(), Table{}, DocumentInfo{})
	assert.Error(t, err)
}
