package assemble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	props, err := Group([]Row{
		RowOf("feature", "F1", "prop", "a"),
		RowOf("feature", "F2", "prop", "b"),
	}, "feature", "props")
	require.NoError(t, err)
	pubs, err := Group([]Row{
		RowOf("feature", "F1", "pub", "PMID:1"),
	}, "feature", "pubs")
	require.NoError(t, err)

	t.Run("missing keys get empty collections", func(t *testing.T) {
		out, err := Combine(
			Input{Name: "properties", Key: "feature", Collection: "props", Records: props},
			Input{Name: "pubs", Key: "feature", Records: pubs},
		)
		require.NoError(t, err)
		assert.Equal(t,
			`[{"feature":"F1","properties":[{"prop":"a"}],"pubs":[{"pub":"PMID:1"}]},`+
				`{"feature":"F2","properties":[{"prop":"b"}],"pubs":[]}]`,
			mustJSON(t, out))
	})

	t.Run("order is the union of first sight, root first", func(t *testing.T) {
		extra, err := Group([]Row{
			RowOf("uniquename", "F3", "x", 1),
			RowOf("uniquename", "F1", "x", 2),
		}, "uniquename", "xs")
		require.NoError(t, err)
		out, err := Combine(
			Input{Name: "pubs", Key: "feature", Records: pubs},
			Input{Name: "xs", Key: "uniquename", Records: extra},
			Input{Name: "properties", Key: "feature", Collection: "props", Records: props},
		)
		require.NoError(t, err)
		var keys []any
		for _, r := range out {
			keys = append(keys, r.Value("feature"))
			assert.Equal(t, []string{"feature", "pubs", "xs", "properties"}, r.Names())
		}
		assert.Equal(t, []any{"F1", "F3", "F2"}, keys)
	})

	t.Run("record without key", func(t *testing.T) {
		bad := []*Record{NewRecord(1).Set("other", "F1")}
		_, err := Combine(Input{Name: "pubs", Key: "feature", Records: bad})
		var mr *MalformedRowError
		require.True(t, errors.As(err, &mr))
		assert.Equal(t, "pubs", mr.Input)
		assert.Equal(t, "feature", mr.Column)
	})

	t.Run("no inputs", func(t *testing.T) {
		out, err := Combine()
		require.NoError(t, err)
		assert.Empty(t, out)

		out, err = Combine(Input{Name: "pubs", Key: "feature"})
		require.NoError(t, err)
		assert.Equal(t, "[]", mustJSON(t, out))
	})
}

func TestAttach(t *testing.T) {
	terms := []*Record{
		NewRecord(2).Set("cvterm", "kinase").Set("feature_cvterm_id", int64(10)),
		NewRecord(2).Set("cvterm", "membrane").Set("feature_cvterm_id", int64(11)),
		NewRecord(2).Set("cvterm", "orphan").Set("feature_cvterm_id", nil),
	}
	pubs, err := Group([]Row{
		RowOf("feature_cvterm_id", int64(10), "uniquename", "PMID:1"),
		RowOf("feature_cvterm_id", int64(10), "uniquename", "PMID:2"),
	}, "feature_cvterm_id", "pubs")
	require.NoError(t, err)

	require.NoError(t, Attach(terms, "feature_cvterm_id", Input{Name: "pubs", Key: "feature_cvterm_id", Records: pubs}))

	assert.Len(t, terms[0].Collection("pubs"), 2)
	assert.Equal(t, `{"cvterm":"membrane","feature_cvterm_id":11,"pubs":[]}`, mustJSON(t, terms[1]))
	assert.NotNil(t, terms[2].Collection("pubs"))
	assert.Empty(t, terms[2].Collection("pubs"))
}
