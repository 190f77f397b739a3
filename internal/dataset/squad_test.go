package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadMini(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Load(filepath.Join("testdata", "mini.json"))
	require.NoError(t, err)
	return ds
}

func TestDocuments(t *testing.T) {
	ds := loadMini(t)

	want := []models.Document{
		{ID: "0", Title: "Normans", Position: 0, Content: "The Normans were the people who in the 10th and 11th centuries gave their name to Normandy, a region in France."},
		{ID: "1", Title: "Normans", Position: 1, Content: "Rollo was the first ruler of Normandy."},
	}
	if diff := cmp.Diff(want, ds.Documents()); diff != "" {
		t.Errorf("Documents() mismatch (-want +got):\n%s", diff)
	}
}

func TestPossibleQuestions(t *testing.T) {
	ds := loadMini(t)

	got := ds.PossibleQuestions(0)
	want := []Question{
		{Index: 0, SquadID: "q1", Question: "In what country is Normandy located?", References: []string{"france"}, Document: "0"},
		{Index: 1, SquadID: "q3", Question: "Who was the first ruler of Normandy?", References: []string{"rollo", "rollo, a viking"}, Document: "1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PossibleQuestions() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "1", got[1].Key())

	t.Run("limit", func(t *testing.T) {
		limited := ds.PossibleQuestions(1)
		require.Len(t, limited, 1)
		assert.Equal(t, "q1", limited[0].SquadID)
	})
}

// Randomized datasets never yield more than the cap or any impossible question.
func TestPossibleQuestionsCapAndFilter(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 20; run++ {
		var file squadFile
		impossible := map[string]bool{}
		n := 0
		for a := 0; a < 1+rng.Intn(6); a++ {
			art := article{Title: "t"}
			for p := 0; p < 1+rng.Intn(30); p++ {
				par := paragraph{Context: "ctx"}
				for q := 0; q < rng.Intn(15); q++ {
					id := fmt.Sprintf("q%d-%d", run, n)
					n++
					imp := rng.Intn(3) == 0
					impossible[id] = imp
					par.QAs = append(par.QAs, qa{ID: id, Question: id, IsImpossible: imp, Answers: []answer{{Text: "A"}}})
				}
				art.Paragraphs = append(art.Paragraphs, par)
			}
			file.Data = append(file.Data, art)
		}

		raw, err := json.Marshal(file)
		require.NoError(t, err)
		ds, err := Parse(bytes.NewReader(raw))
		require.NoError(t, err)

		for _, limit := range []int{0, 10, 500} {
			got := ds.PossibleQuestions(limit)
			bound := limit
			if bound <= 0 {
				bound = DefaultQuestionLimit
			}
			assert.LessOrEqual(t, len(got), bound)
			for i, q := range got {
				assert.False(t, impossible[q.SquadID], "impossible question %s returned", q.SquadID)
				assert.Equal(t, i, q.Index)
			}
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json"},
		{"missing data", `{"version": "v2.0"}`},
		{"wrong shape", `{"data": {"title": "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDataset))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.True(t, errors.Is(err, ErrInvalidDataset))
	})
}
