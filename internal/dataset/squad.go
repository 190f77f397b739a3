// Package dataset reads SQuAD 2.0 files into context documents and evaluable questions.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/raphaelgruber/ragbench/internal/models"
)

// DefaultQuestionLimit caps the number of questions drawn from a dataset.
const DefaultQuestionLimit = 500

// ErrInvalidDataset indicates the dataset file is missing or not SQuAD shaped.
var ErrInvalidDataset = errors.New("invalid dataset")

type squadFile struct {
	Version string    `json:"version"`
	Data    []article `json:"data"`
}

type article struct {
	Title      string      `json:"title"`
	Paragraphs []paragraph `json:"paragraphs"`
}

type paragraph struct {
	Context string `json:"context"`
	QAs     []qa   `json:"qas"`
}

type qa struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	IsImpossible bool     `json:"is_impossible"`
	Answers      []answer `json:"answers"`
}

type answer struct {
	Text string `json:"text"`
}

// Question is an answerable dataset question.
type Question struct {
	// Index is the dense position in the capped question list. It is the
	// correlation key carried through every batch as custom_id.
	Index int `json:"index"`

	SquadID  string `json:"squad_id,omitempty"`
	Question string `json:"question"`

	// References holds the distinct lower-cased answer texts in dataset order.
	References []string `json:"references"`

	// Document is the ID of the paragraph the question was asked about.
	Document string `json:"document"`
}

// Key returns the correlation key used as a task custom_id.
func (q Question) Key() string {
	return strconv.Itoa(q.Index)
}

// Dataset is a decoded SQuAD 2.0 file.
type Dataset struct {
	Version string
	file    squadFile
}

// Load reads and decodes the dataset at path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a SQuAD 2.0 document from r.
func Parse(r io.Reader) (*Dataset, error) {
	var file squadFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidDataset, err)
	}
	if file.Data == nil {
		return nil, fmt.Errorf("%w: no \"data\" array", ErrInvalidDataset)
	}
	return &Dataset{Version: file.Version, file: file}, nil
}

// Documents returns one document per paragraph, IDs assigned by a running counter.
func (d *Dataset) Documents() []models.Document {
	var docs []models.Document
	id := 0
	for _, a := range d.file.Data {
		for pos, p := range a.Paragraphs {
			docs = append(docs, models.Document{
				ID:       strconv.Itoa(id),
				Title:    a.Title,
				Position: pos,
				Content:  p.Context,
			})
			id++
		}
	}
	return docs
}

// PossibleQuestions returns answerable questions in dataset order, at most limit
// of them. A non-positive limit uses DefaultQuestionLimit.
func (d *Dataset) PossibleQuestions(limit int) []Question {
	if limit <= 0 {
		limit = DefaultQuestionLimit
	}

	var out []Question
	docID := 0
	for _, a := range d.file.Data {
		for _, p := range a.Paragraphs {
			for _, q := range p.QAs {
				if q.IsImpossible {
					continue
				}
				out = append(out, Question{
					Index:      len(out),
					SquadID:    q.ID,
					Question:   q.Question,
					References: references(q.Answers),
					Document:   strconv.Itoa(docID),
				})
				if len(out) >= limit {
					return out
				}
			}
			docID++
		}
	}
	return out
}

func references(answers []answer) []string {
	seen := make(map[string]bool, len(answers))
	var refs []string
	for _, a := range answers {
		text := strings.ToLower(strings.TrimSpace(a.Text))
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		refs = append(refs, text)
	}
	return refs
}
