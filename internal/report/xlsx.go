package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is the xlsx limit on sheet name length.
const maxSheetName = 31

// XLSXHeader is the first row of every run sheet.
var XLSXHeader = []string{"Key", "Question", "Answer", "References", "Verdict", "Explanation"}

// WriteXLSX writes one sheet per run with a row per graded question.
func WriteXLSX(path string, runs []Run) error {
	if path == "" {
		return errors.New("output path is required")
	}
	if len(runs) == 0 {
		return errors.New("no runs to export")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	first := file.GetSheetName(0)
	used := map[string]bool{}
	for i, run := range runs {
		name := SheetName(run.Label, used)
		if i == 0 {
			if err := file.SetSheetName(first, name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeRunSheet(file, name, run); err != nil {
			return err
		}
	}

	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func writeRunSheet(file *excelize.File, sheet string, run Run) error {
	if err := file.SetColWidth(sheet, "B", "D", 50); err != nil {
		return fmt.Errorf("set width for B-D: %w", err)
	}
	if err := file.SetColWidth(sheet, "F", "F", 80); err != nil {
		return fmt.Errorf("set width for F: %w", err)
	}

	if err := file.SetSheetRow(sheet, "A1", &XLSXHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range run.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("convert row cell: %w", err)
		}
		values := []any{
			row.Key,
			row.Question,
			row.Answer,
			strings.Join(row.References, "; "),
			row.Verdict,
			row.Explanation,
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
	}
	return nil
}

// SheetName derives a unique, valid sheet name from label and records it in used.
func SheetName(label string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(label))
	if name == "" {
		name = "run"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = base + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
