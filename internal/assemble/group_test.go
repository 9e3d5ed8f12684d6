package assemble

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func colorRows() []Row {
	return []Row{
		RowOf("g", "G1", "p", "red"),
		RowOf("g", "G1", "p", "blue"),
		RowOf("g", "G2", "p", "red"),
	}
}

func TestGroup(t *testing.T) {
	t.Run("groups by key in first-seen order", func(t *testing.T) {
		out, err := Group(colorRows(), "g", "colors")
		require.NoError(t, err)
		assert.Equal(t,
			`[{"g":"G1","colors":[{"p":"red"},{"p":"blue"}]},{"g":"G2","colors":[{"p":"red"}]}]`,
			mustJSON(t, out))
	})

	t.Run("empty input", func(t *testing.T) {
		out, err := Group(nil, "g", "colors")
		require.NoError(t, err)
		assert.Equal(t, "[]", mustJSON(t, out))
	})

	t.Run("missing key column", func(t *testing.T) {
		rows := append(colorRows(), RowOf("x", "G3", "p", "green"))
		out, err := Group(rows, "g", "colors")
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, ErrMalformedRow))

		var mr *MalformedRowError
		require.True(t, errors.As(err, &mr))
		assert.Equal(t, "g", mr.Column)
		assert.Equal(t, 3, mr.Row)
		assert.False(t, mr.Null)
		assert.Equal(t, KindMalformedRow, KindOf(err))
		assert.Contains(t, err.Error(), `"g"`)
	})

	t.Run("null key column", func(t *testing.T) {
		_, err := Group([]Row{RowOf("g", nil, "p", "red")}, "g", "colors")
		var mr *MalformedRowError
		require.True(t, errors.As(err, &mr))
		assert.True(t, mr.Null)
	})

	t.Run("first-seen own values win", func(t *testing.T) {
		rows := []Row{
			RowOf("feature", "F1", "prop", "a"),
			RowOf("feature", "F1", "prop", "b"),
		}
		out, err := Group(rows, "feature", "props")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "F1", out[0].Value("feature"))
		assert.Len(t, out[0].Collection("props"), 2)
	})

	t.Run("keep key inside leaves", func(t *testing.T) {
		out, err := Group(colorRows()[:1], "g", "colors", KeepKey())
		require.NoError(t, err)
		assert.Equal(t, `[{"g":"G1","colors":[{"g":"G1","p":"red"}]}]`, mustJSON(t, out))
	})

	t.Run("leaf fields keep row column order", func(t *testing.T) {
		rows := []Row{RowOf("z", 1, "feature", "F1", "a", true)}
		out, err := Group(rows, "feature", "props")
		require.NoError(t, err)
		assert.Equal(t, `[{"feature":"F1","props":[{"z":1,"a":true}]}]`, mustJSON(t, out))
	})

	t.Run("input rows are not modified", func(t *testing.T) {
		rows := colorRows()
		_, err := Group(rows, "g", "colors")
		require.NoError(t, err)
		assert.Equal(t, []string{"g", "p"}, rows[0].Columns())
		assert.Equal(t, "G1", rows[0].Value("g"))
	})
}

func TestGroupIdempotence(t *testing.T) {
	rows := colorRows()
	doubled := append(append([]Row{}, rows...), rows...)

	t.Run("leaf duplicates kept by default", func(t *testing.T) {
		out, err := Group(doubled, "g", "colors")
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Len(t, out[0].Collection("colors"), 4)
		assert.Len(t, out[1].Collection("colors"), 2)
	})

	t.Run("dedup leaves collapses re-fed rows", func(t *testing.T) {
		once, err := Group(rows, "g", "colors", DedupLeaves())
		require.NoError(t, err)
		twice, err := Group(doubled, "g", "colors", DedupLeaves())
		require.NoError(t, err)
		assert.Equal(t, mustJSON(t, once), mustJSON(t, twice))
	})

	t.Run("dedup leaves is scoped to the parent", func(t *testing.T) {
		out, err := Group(rows, "g", "colors", DedupLeaves())
		require.NoError(t, err)
		assert.Len(t, out[1].Collection("colors"), 1, "G2 keeps its own red leaf")
	})

	t.Run("dedup leaves compares types", func(t *testing.T) {
		in := []Row{
			RowOf("g", "G1", "n", int64(1)),
			RowOf("g", "G1", "n", "1"),
		}
		out, err := Group(in, "g", "colors", DedupLeaves())
		require.NoError(t, err)
		assert.Len(t, out[0].Collection("colors"), 2)
	})
}

func TestGroupOrderPreservation(t *testing.T) {
	// B's children are dense before A first appears; A stays after B.
	rows := []Row{
		RowOf("k", "B", "v", 1),
		RowOf("k", "B", "v", 2),
		RowOf("k", "B", "v", 3),
		RowOf("k", "A", "v", 4),
		RowOf("k", "B", "v", 5),
		RowOf("k", "C", "v", 6),
		RowOf("k", "A", "v", 7),
	}
	out, err := Group(rows, "k", "vs")
	require.NoError(t, err)

	var keys []any
	for _, r := range out {
		keys = append(keys, r.Value("k"))
	}
	assert.Equal(t, []any{"B", "A", "C"}, keys)
	assert.Equal(t, `[{"v":4},{"v":7}]`, mustJSON(t, out[1].Collection("vs")))
}

func TestDeduper(t *testing.T) {
	d := NewDeduper[*Record]()
	calls := 0
	factory := func() *Record {
		calls++
		return NewRecord(0)
	}

	a, created := d.GetOrCreate(KeyOf("a"), factory)
	assert.True(t, created)
	a2, created := d.GetOrCreate(KeyOf("a"), factory)
	assert.False(t, created)
	assert.Same(t, a, a2)
	_, _ = d.GetOrCreate(KeyOf("b"), factory)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, d.Len())
	assert.Same(t, a, d.Items()[0])

	_, ok := d.Get(KeyOf("missing"))
	assert.False(t, ok)
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, KeyOf("a", "b"), KeyOf("a", "b"))
	assert.NotEqual(t, KeyOf("a", "b"), KeyOf("ab"))
	assert.NotEqual(t, KeyOf("a", nil), KeyOf("a", ""))
	assert.Equal(t, KeyOf(int64(7)), KeyOf(7))

	t.Run("types are part of the key", func(t *testing.T) {
		assert.NotEqual(t, KeyOf("1"), KeyOf(int64(1)))
		assert.NotEqual(t, KeyOf(int64(1)), KeyOf(float64(1)))
		assert.NotEqual(t, KeyOf("1"), KeyOf(float64(1)))
		assert.NotEqual(t, KeyOf(true), KeyOf("true"))
		assert.NotEqual(t, KeyOf(nil), KeyOf("n"))
	})

	t.Run("parts cannot run together", func(t *testing.T) {
		assert.NotEqual(t, KeyOf("a\x1fb"), KeyOf("a", "b"))
		assert.NotEqual(t, KeyOf("a", "bc"), KeyOf("ab", "c"))
		assert.NotEqual(t, KeyOf("s1:a"), KeyOf("a", "a"))
	})
}

func TestGroupMixedKeyTypes(t *testing.T) {
	rows := []Row{
		RowOf("id", "1", "v", "string"),
		RowOf("id", int64(1), "v", "int"),
		RowOf("id", float64(1), "v", "float"),
		RowOf("id", true, "v", "bool"),
		RowOf("id", "true", "v", "string-bool"),
	}
	out, err := Group(rows, "id", "vs")
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, rec := range out {
		assert.Equal(t, rows[i].Value("id"), rec.Value("id"))
		assert.Len(t, rec.Collection("vs"), 1)
	}
}
