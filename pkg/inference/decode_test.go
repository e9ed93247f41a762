package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}", `{"a":1}`},
		{"trailing prose", `{"a":1} hope that helps`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	var out MappingSuggestion
	err := decode("mapping", "I could not determine a mapping.", &out)
	require.Error(t, err)

	assert.True(t, IsMalformed(err))
	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "mapping", me.Operation)
	assert.Contains(t, me.RawText, "could not determine")
}

func TestDecodeParsed(t *testing.T) {
	t.Parallel()

	var out DuplicateVerdict
	err := decode("duplicate", "```json\n{\"duplicate\":true,\"confidence\":0.92}\n```", &out)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, 0.92, out.Confidence)
}
