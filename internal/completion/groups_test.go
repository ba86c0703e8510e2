package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/domain"
)

func TestGroupTable_DefaultMapping(t *testing.T) {
	table, err := NewGroupTable(13, DefaultGroups)
	require.NoError(t, err)

	tests := []struct {
		part int
		want string
	}{
		{0, "a1100"}, {6, "a1100"},
		{7, "a1400"}, {10, "a1400"},
		{11, "a2000"}, {12, "a2000"},
	}
	for _, tt := range tests {
		got, err := table.GroupOf(tt.part)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "part %d", tt.part)
	}

	for _, bad := range []int{-1, 13, 100} {
		_, err := table.GroupOf(bad)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, "part %d", bad)
	}
}

func TestGroupTable_ParsePart(t *testing.T) {
	table, err := NewGroupTable(13, DefaultGroups)
	require.NoError(t, err)

	p, err := table.ParsePart(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, p)

	for _, bad := range []string{"", "x", "1.5", "13", "-1"} {
		_, err := table.ParsePart(bad)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, "input %q", bad)
	}
}

func TestNewGroupTable_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		expected int
		groups   []Group
	}{
		{"zero parts", 0, DefaultGroups},
		{"empty", 13, nil},
		{"gap", 13, []Group{{"a", 0, 5}, {"b", 7, 12}}},
		{"overlap", 13, []Group{{"a", 0, 7}, {"b", 7, 12}}},
		{"short", 13, []Group{{"a", 0, 6}, {"b", 7, 11}}},
		{"beyond", 13, []Group{{"a", 0, 13}}},
		{"not from zero", 13, []Group{{"a", 1, 12}}},
		{"reversed", 13, []Group{{"a", 0, 6}, {"b", 12, 7}}},
		{"duplicate name", 13, []Group{{"a", 0, 6}, {"a", 7, 12}}},
		{"unnamed", 13, []Group{{"", 0, 12}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroupTable(tt.expected, tt.groups)
			var ve *domain.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}
