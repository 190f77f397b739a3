// Package results decodes batch output files and direct-answer files.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"
)

// maxLineSize bounds a single result line.
const maxLineSize = 16 * 1024 * 1024

// Shape identifies which envelope a line used.
type Shape string

// Result shapes.
const (
	ShapeBatch Shape = "batch" // {custom_id, response: {body: {choices: [{message: {content}}]}}}
	ShapeFlat  Shape = "flat"  // {question, response, input_tokens, output_tokens}
)

// Result is one decoded output line.
type Result struct {
	Line         int
	Shape        Shape
	CustomID     string
	Question     string
	Content      string
	InputTokens  int
	OutputTokens int
	// Err holds a provider-side error for this request, if any.
	Err string
}

// Stats counts what Parse saw.
type Stats struct {
	Lines     int
	Parsed    int
	Malformed int
}

// Parser decodes result files line by line.
type Parser struct {
	logger  *slog.Logger
	maxLine int
}

// NewParser creates a parser. logger may be nil.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, maxLine: maxLineSize}
}

// ParseFile parses the result file at path.
func (p *Parser) ParseFile(path string) ([]Result, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse decodes every non-blank line of r. Malformed and oversized lines are
// logged, counted in Stats.Malformed and skipped. Only read errors are returned.
func (p *Parser) Parse(r io.Reader) ([]Result, Stats, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		out   []Result
		stats Stats
		line  int
	)
	for {
		chunk, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return out, stats, fmt.Errorf("read results: %w", readErr)
		}
		if len(chunk) > 0 {
			line++
			if raw := bytes.TrimSpace(chunk); len(raw) > 0 {
				stats.Lines++
				res, err := p.parseRaw(raw)
				if err != nil {
					stats.Malformed++
					p.logger.Warn("skipping malformed result line", "line", line, "error", err)
				} else {
					res.Line = line
					out = append(out, res)
					stats.Parsed++
				}
			}
		}
		if readErr == io.EOF {
			return out, stats, nil
		}
	}
}

func (p *Parser) parseRaw(raw []byte) (Result, error) {
	if p.maxLine > 0 && len(raw) > p.maxLine {
		return Result{}, fmt.Errorf("line is %d bytes, limit %d", len(raw), p.maxLine)
	}
	return parseLine(raw)
}

func parseLine(raw []byte) (Result, error) {
	if !gjson.ValidBytes(raw) {
		return Result{}, fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Result{}, fmt.Errorf("line is not a JSON object")
	}

	resp := doc.Get("response")
	switch {
	case resp.IsObject():
		res := Result{
			Shape:        ShapeBatch,
			CustomID:     doc.Get("custom_id").String(),
			InputTokens:  int(resp.Get("body.usage.prompt_tokens").Int()),
			OutputTokens: int(resp.Get("body.usage.completion_tokens").Int()),
		}
		if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
			res.Err = firstNonEmpty(e.Get("message").String(), e.Raw)
		}
		content := resp.Get("body.choices.0.message.content")
		if !content.Exists() {
			if res.Err != "" {
				return res, nil
			}
			if msg := resp.Get("body.error.message"); msg.Exists() {
				res.Err = msg.String()
				return res, nil
			}
			return Result{}, fmt.Errorf("batch envelope has no choices[0].message.content")
		}
		res.Content = content.String()
		return res, nil

	case resp.Type == gjson.String:
		return Result{
			Shape:        ShapeFlat,
			CustomID:     doc.Get("custom_id").String(),
			Question:     doc.Get("question").String(),
			Content:      resp.String(),
			InputTokens:  int(doc.Get("input_tokens").Int()),
			OutputTokens: int(doc.Get("output_tokens").Int()),
		}, nil

	default:
		if e := doc.Get("error"); e.IsObject() {
			return Result{
				Shape:    ShapeBatch,
				CustomID: doc.Get("custom_id").String(),
				Err:      firstNonEmpty(e.Get("message").String(), e.Raw),
			}, nil
		}
		return Result{}, fmt.Errorf("no recognised response field")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FlatRecord is one line of a direct-answer file.
type FlatRecord struct {
	CustomID     string `json:"custom_id,omitempty"`
	Question     string `json:"question"`
	Response     string `json:"response"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// FlatWriter appends FlatRecords as JSON lines.
type FlatWriter struct {
	enc *json.Encoder
}

// NewFlatWriter wraps w.
func NewFlatWriter(w io.Writer) *FlatWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &FlatWriter{enc: enc}
}

// Write appends rec.
func (fw *FlatWriter) Write(rec FlatRecord) error {
	if err := fw.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
