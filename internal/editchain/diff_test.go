package editchain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/editchain"
	"github.com/TheMichaelB/spacesync/internal/models"
)

func doc(t *testing.T, s string) map[string]any {
	t.Helper()
	v, err := crypto.DecodeJSON([]byte(s))
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	return m
}

func TestValueDiff(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []models.EditDiff
	}{
		{
			name: "flat change",
			old:  `{"name":"Alice","age":30}`,
			new:  `{"name":"Bob","age":30}`,
			want: []models.EditDiff{{Path: "name", From: "Alice", To: "Bob"}},
		},
		{
			name: "addition",
			old:  `{}`,
			new:  `{"name":"Alice"}`,
			want: []models.EditDiff{{Path: "name", From: nil, To: "Alice"}},
		},
		{
			name: "deletion",
			old:  `{"name":"Alice"}`,
			new:  `{}`,
			want: []models.EditDiff{{Path: "name", From: "Alice", To: nil, Del: true}},
		},
		{
			name: "set to null",
			old:  `{"name":"Alice"}`,
			new:  `{"name":null}`,
			want: []models.EditDiff{{Path: "name", From: "Alice", To: nil}},
		},
		{
			name: "added as null",
			old:  `{}`,
			new:  `{"name":null}`,
			want: []models.EditDiff{{Path: "name", From: nil, To: nil}},
		},
		{
			name: "nested",
			old:  `{"address":{"city":"Paris","zip":"75001"}}`,
			new:  `{"address":{"city":"Lyon","zip":"75001"}}`,
			want: []models.EditDiff{{Path: "address.city", From: "Paris", To: "Lyon"}},
		},
		{
			name: "arrays are atomic",
			old:  `{"tags":["a","b"]}`,
			new:  `{"tags":["a","c"]}`,
			want: []models.EditDiff{{Path: "tags", From: []any{"a", "b"}, To: []any{"a", "c"}}},
		},
		{
			name: "object replaced by scalar",
			old:  `{"meta":{"x":1}}`,
			new:  `{"meta":5}`,
			want: []models.EditDiff{{Path: "meta", From: map[string]any{"x": json.Number("1")}, To: json.Number("5")}},
		},
		{
			name: "identical",
			old:  `{"a":1,"b":{"c":[1,2]}}`,
			new:  `{"b":{"c":[1,2]},"a":1}`,
			want: nil,
		},
		{
			name: "sorted key order",
			old:  `{"b":1,"a":1}`,
			new:  `{"b":2,"c":3}`,
			want: []models.EditDiff{
				{Path: "a", From: json.Number("1"), To: nil, Del: true},
				{Path: "b", From: json.Number("1"), To: json.Number("2")},
				{Path: "c", From: nil, To: json.Number("3")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := editchain.ValueDiff(doc(t, tt.old), doc(t, tt.new), "")
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("prefix", func(t *testing.T) {
		got := editchain.ValueDiff(doc(t, `{"a":1}`), doc(t, `{"a":2}`), "root")
		require.Len(t, got, 1)
		assert.Equal(t, "root.a", got[0].Path)
	})

	t.Run("non-object views", func(t *testing.T) {
		assert.Empty(t, editchain.ValueDiff([]any{1}, map[string]any{}, ""))
		assert.Empty(t, editchain.ValueDiff(map[string]any{}, "x", ""))
	})
}

func entriesOf(diffs ...[]models.EditDiff) []*models.EditEntry {
	entries := make([]*models.EditEntry, len(diffs))
	for i, d := range diffs {
		entries[i] = &models.EditEntry{Diffs: d}
	}
	return entries
}

func TestReconstructState(t *testing.T) {
	entries := entriesOf(
		[]models.EditDiff{{Path: "x", To: 1}, {Path: "y", To: 10}},
		[]models.EditDiff{{Path: "x", From: 1, To: 2}},
		[]models.EditDiff{{Path: "y", From: 10, To: 20}},
	)

	tests := []struct {
		upTo int
		want map[string]any
	}{
		{0, map[string]any{"x": 1, "y": 10}},
		{1, map[string]any{"x": 2, "y": 10}},
		{2, map[string]any{"x": 2, "y": 20}},
		{99, map[string]any{"x": 2, "y": 20}},
	}

	for _, tt := range tests {
		got, err := editchain.ReconstructState(entries, tt.upTo)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "upTo=%d", tt.upTo)
	}

	t.Run("empty chain", func(t *testing.T) {
		got, err := editchain.ReconstructState(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("deletion removes key", func(t *testing.T) {
		got, err := editchain.ReconstructState(entriesOf(
			[]models.EditDiff{{Path: "a", To: 1}, {Path: "b", To: 2}},
			[]models.EditDiff{{Path: "a", From: 1, Del: true}},
		), 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"b": 2}, got)
	})

	t.Run("null is kept", func(t *testing.T) {
		got, err := editchain.ReconstructState(entriesOf(
			[]models.EditDiff{{Path: "a", To: 1}},
			[]models.EditDiff{{Path: "a", From: 1, To: nil}},
		), 1)
		require.NoError(t, err)
		v, ok := got["a"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("nested path creates intermediates", func(t *testing.T) {
		got, err := editchain.ReconstructState(entriesOf(
			[]models.EditDiff{{Path: "a", To: "scalar"}},
			[]models.EditDiff{{Path: "a.b.c", To: true}},
		), 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": true}}}, got)
	})

	t.Run("entry values are not aliased", func(t *testing.T) {
		first := map[string]any{"inner": "v"}
		chain := entriesOf(
			[]models.EditDiff{{Path: "obj", To: first}},
			[]models.EditDiff{{Path: "obj.added", To: 1}},
		)
		_, err := editchain.ReconstructState(chain, 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"inner": "v"}, first)
	})
}

func TestReconstructRejectsPrototypePaths(t *testing.T) {
	for _, path := range []string{"__proto__", "a.__proto__.polluted", "constructor.x", "x.prototype"} {
		t.Run(path, func(t *testing.T) {
			_, err := editchain.ReconstructState(entriesOf([]models.EditDiff{{Path: path, To: 1}}), 0)
			var dangerous *models.DangerousPathSegmentError
			require.True(t, errors.As(err, &dangerous))
			assert.Equal(t, path, dangerous.Path)
		})
	}

	t.Run("delete is guarded too", func(t *testing.T) {
		_, err := editchain.ReconstructState(entriesOf([]models.EditDiff{{Path: "constructor", Del: true}}), 0)
		assert.Error(t, err)
	})
}

func TestDiffApplyRoundTrip(t *testing.T) {
	before := doc(t, `{"title":"a","meta":{"tags":["x"],"n":1},"gone":true}`)
	after := doc(t, `{"title":"b","meta":{"tags":["x","y"],"n":1,"extra":null}}`)

	diffs := editchain.ValueDiff(before, after, "")
	got, err := editchain.ReconstructState(entriesOf(editchain.ValueDiff(map[string]any{}, before, ""), diffs), 1)
	require.NoError(t, err)
	assert.Equal(t, after, got)
}
