package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Document is one retrievable context passage. IDs are dense decimal counters
// assigned in dataset order and stay fixed once ingested.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"` // Paragraph index within its article
	Content  string `json:"content"`
}

// Passage is a Document as stored in the vector table.
type Passage struct {
	ID surrealmodels.RecordID `json:"id"`

	Title    string `json:"title"`
	Position int    `json:"position"`
	Content  string `json:"content"`

	// Search
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ScoredPassage is a search hit with its cosine similarity to the query.
type ScoredPassage struct {
	ID       surrealmodels.RecordID `json:"id"`
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	Position int                    `json:"position"`
	Score    float64                `json:"score"`
}
