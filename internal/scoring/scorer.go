// Package scoring turns judge verdicts into accuracy figures.
package scoring

import (
	"fmt"

	"github.com/raphaelgruber/ragbench/internal/grading"
)

// Policy selects the accuracy denominator.
type Policy int

const (
	// CountParseFailures divides by every attempted verdict; an unreadable
	// grade counts against accuracy.
	CountParseFailures Policy = iota
	// ExcludeParseFailures divides by readable verdicts only.
	ExcludeParseFailures
)

func (p Policy) String() string {
	switch p {
	case ExcludeParseFailures:
		return "exclude-parse-failures"
	default:
		return "count-parse-failures"
	}
}

// Summary aggregates one run's verdicts.
type Summary struct {
	Label         string
	Policy        Policy
	Correct       int
	Incorrect     int
	ParseFailures int
	// Attempted is every verdict, readable or not.
	Attempted int
	// Total is the accuracy denominator under Policy.
	Total int
	// Accuracy is Correct/Total*100; zero when Insufficient.
	Accuracy     float64
	Insufficient bool
}

// Score aggregates verdicts under policy.
func Score(verdicts []grading.Verdict, policy Policy) Summary {
	s := Summary{Policy: policy, Attempted: len(verdicts)}
	for _, v := range verdicts {
		switch {
		case !v.Parsed():
			s.ParseFailures++
		case v.Grade.Score:
			s.Correct++
		default:
			s.Incorrect++
		}
	}

	s.Total = s.Attempted
	if policy == ExcludeParseFailures {
		s.Total = s.Correct + s.Incorrect
	}
	if s.Total == 0 {
		s.Insufficient = true
		return s
	}
	s.Accuracy = float64(s.Correct) / float64(s.Total) * 100
	return s
}

// ScoreTexts extracts a grade from each raw judge text and scores them.
func ScoreTexts(texts []string, policy Policy) Summary {
	verdicts := make([]grading.Verdict, len(texts))
	for i, text := range texts {
		g, err := grading.Extract(text)
		verdicts[i] = grading.Verdict{Key: fmt.Sprint(i), Grade: g, Err: err, Raw: text}
	}
	return Score(verdicts, policy)
}

// AccuracyText renders the accuracy or "insufficient data".
func (s Summary) AccuracyText() string {
	if s.Insufficient {
		return "insufficient data"
	}
	return fmt.Sprintf("%.1f%%", s.Accuracy)
}
