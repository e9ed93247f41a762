package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/model"
)

func TestDefaultAliases(t *testing.T) {
	t.Parallel()

	d := DefaultAliases()

	tests := []struct {
		column string
		want   string
	}{
		{"Produktname", model.FieldName},
		{"PRODUCT NAME", model.FieldName},
		{"Kosten pro Monat", model.FieldCostMonthly},
		{"Jährliche Kosten", model.FieldCostAnnual},
		{"Anbieter", model.FieldVendor},
		{"Verantwortlicher", model.FieldOwner},
		{"price", model.FieldCostMonthly},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.column)
		require.True(t, ok, "column %q", tt.column)
		assert.Equal(t, tt.want, got, "column %q", tt.column)
	}

	_, ok := d.Lookup("completely unrelated")
	assert.False(t, ok)
}

func TestLoadAliasesMergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vendor:\n  - Dienstleister\nname:\n  - Systemname\n"), 0o644))

	d, err := LoadAliases(path)
	require.NoError(t, err)

	got, ok := d.Lookup("Dienstleister")
	require.True(t, ok)
	assert.Equal(t, model.FieldVendor, got)

	// Defaults survive the merge.
	got, ok = d.Lookup("Produktname")
	require.True(t, ok)
	assert.Equal(t, model.FieldName, got)
}

func TestAliasesForInvertsTheDictionary(t *testing.T) {
	t.Parallel()

	d := DefaultAliases()
	names := d.AliasesFor(model.FieldVendor)
	assert.Contains(t, names, "anbieter")
	assert.Contains(t, names, "vendor")
}
