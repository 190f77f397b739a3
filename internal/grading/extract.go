package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// ErrNoJSON is returned when judge text holds no complete JSON object.
var ErrNoJSON = errors.New("no JSON object in judge response")

// ErrMalformedGrade is returned when every JSON object candidate fails to
// decode or does not match the grade schema.
var ErrMalformedGrade = errors.New("malformed grade")

// Grade is the judge verdict for one answer.
type Grade struct {
	Explanation string `json:"explanation"`
	Score       bool   `json:"score"`
}

// The judge is asked for a boolean score, but any score shape is accepted
// and read through truthy.
const gradeSchemaSource = `{
  "type": "object",
  "properties": {
    "explanation": {"type": "string"}
  }
}`

var gradeSchema = mustCompileGradeSchema()

func mustCompileGradeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(gradeSchemaSource))
	if err != nil {
		panic(fmt.Sprintf("grade schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("grade.json", doc); err != nil {
		panic(fmt.Sprintf("grade schema: %v", err))
	}
	return c.MustCompile("grade.json")
}

// Extract recovers the grade from free-form judge text. Candidates are the
// complete, balanced JSON objects in the text, tried in order; the first
// one that decodes and matches the schema wins.
func Extract(text string) (Grade, error) {
	candidates := Objects(text)
	if len(candidates) == 0 {
		return Grade{}, ErrNoJSON
	}

	var lastErr error
	for _, c := range candidates {
		g, err := decodeGrade(c)
		if err == nil {
			return g, nil
		}
		lastErr = err
	}
	return Grade{}, fmt.Errorf("%w: %v", ErrMalformedGrade, lastErr)
}

func decodeGrade(candidate string) (Grade, error) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		// Judges sometimes emit trailing commas or single quotes.
		if err5 := json5.Unmarshal([]byte(candidate), &v); err5 != nil {
			return Grade{}, err
		}
	}
	if err := gradeSchema.Validate(v); err != nil {
		return Grade{}, err
	}

	obj := v.(map[string]any)
	g := Grade{Score: truthy(obj["score"])}
	if s, ok := obj["explanation"].(string); ok {
		g.Explanation = s
	}
	return g, nil
}

// truthy reads a decoded score: booleans as is, "true" in any case, and any
// non-zero number count as correct. A missing score is false.
func truthy(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case string:
		return strings.EqualFold(strings.TrimSpace(s), "true")
	case float64:
		return s != 0
	case json.Number:
		f, err := s.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// Objects returns every top-level brace-balanced span of text, skipping
// braces inside double- or single-quoted strings. A span whose opening
// brace never closes is abandoned and scanning resumes after that brace.
func Objects(text string) []string {
	var out []string
	for start := 0; start < len(text); {
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			break
		}
		open += start

		end := matchBrace(text, open)
		if end < 0 {
			start = open + 1
			continue
		}
		out = append(out, text[open:end+1])
		start = end + 1
	}
	return out
}

// matchBrace returns the index of the brace closing text[open], or -1.
func matchBrace(text string, open int) int {
	depth := 0
	var quote byte
	escaped := false

	for i := open; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
