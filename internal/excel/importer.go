// Package excel imports catalog words from spreadsheets.
package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/example/engclass/pkg/models"
)

// Column headers understood by the importer. Only form and meaning are required.
const (
	ColumnID          = "id"
	ColumnForm        = "form"
	ColumnMeaning     = "meaning"
	ColumnPhonetic    = "phonetic"
	ColumnSyllables   = "syllables"
	ColumnAudio       = "audio"
	ColumnImage       = "image"
	ColumnMnemonic    = "mnemonic"
	ColumnAnalogy     = "analogy"
	ColumnContexts    = "contexts"
	ColumnConfusables = "confusables"
	ColumnDistractors = "distractors"
)

// ListSeparator splits multi-value cells; syllables use "-"
const ListSeparator = "|"

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("excel: missing required column")

// WordSink receives the parsed words
type WordSink interface {
	SaveAll(ctx context.Context, words []models.Word) (int, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath  string // Path to the Excel or CSV file
	SheetName string // Sheet to import, the first sheet when empty
	DryRun    bool   // Parse and validate without writing
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
	Words          []models.Word
}

// ImportWords imports words from an Excel or CSV file
func ImportWords(ctx context.Context, cfg ImportConfig, sink WordSink) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(cfg.FilePath)) == ".csv" {
		rows, err = readCSV(cfg.FilePath)
	} else {
		rows, err = readExcel(cfg.FilePath, cfg.SheetName)
	}
	if err != nil {
		return nil, err
	}

	result, err := ParseRows(rows)
	if err != nil {
		return nil, err
	}
	if cfg.DryRun || sink == nil || len(result.Words) == 0 {
		return result, nil
	}
	n, err := sink.SaveAll(ctx, result.Words)
	if err != nil {
		return result, fmt.Errorf("failed to save words: %w", err)
	}
	result.Imported = n
	return result, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no sheets in %s", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV reads all records, allowing a variable number of fields
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return rows, nil
}

// ParseRows converts a header row plus data rows into words.
// Row problems are collected in the result; only a bad header fails the import.
func ParseRows(rows [][]string) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMissingColumn)
	}
	header := make(map[string]int)
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColumnForm, ColumnMeaning} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	result := &ImportResult{Errors: make([]string, 0)}
	seen := make(map[string]int)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		result.TotalProcessed++

		w, err := parseRow(row, header)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if prev, ok := seen[w.ID]; ok {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate id %s (first seen in row %d)", rowNum, w.ID, prev))
			continue
		}
		seen[w.ID] = rowNum
		result.Words = append(result.Words, w)
	}
	return result, nil
}

func parseRow(row []string, header map[string]int) (models.Word, error) {
	cell := func(name string) string {
		idx, ok := header[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	w := models.Word{
		ID:      cell(ColumnID),
		Form:    cell(ColumnForm),
		Meaning: cell(ColumnMeaning),
	}
	if w.Form == "" {
		return w, fmt.Errorf("form cannot be empty")
	}
	if w.Meaning == "" {
		return w, fmt.Errorf("meaning cannot be empty")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Contexts = splitList(cell(ColumnContexts), ListSeparator)

	phonetic, audio := cell(ColumnPhonetic), cell(ColumnAudio)
	syllables := splitList(cell(ColumnSyllables), "-")
	if phonetic != "" || audio != "" || len(syllables) > 0 {
		w.Sound = &models.Sound{AudioURL: audio, Phonetic: phonetic, Syllables: syllables}
	}
	if image := cell(ColumnImage); image != "" {
		w.Visual = &models.Visual{ImageURL: image}
	}

	mnemonic, analogy := cell(ColumnMnemonic), cell(ColumnAnalogy)
	confusables := splitList(cell(ColumnConfusables), ListSeparator)
	if mnemonic != "" || analogy != "" || len(confusables) > 0 {
		w.Logic = &models.Logic{Mnemonic: mnemonic, Analogy: analogy, Confusables: confusables}
	}

	distractors, err := parseDistractors(cell(ColumnDistractors))
	if err != nil {
		return w, err
	}
	w.Distractors = distractors
	return w, nil
}

// parseDistractors reads "form=meaning|form=meaning"; the meaning part is optional
func parseDistractors(s string) ([]models.Distractor, error) {
	var out []models.Distractor
	for _, part := range splitList(s, ListSeparator) {
		form, meaning, _ := strings.Cut(part, "=")
		form = strings.TrimSpace(form)
		if form == "" {
			return nil, fmt.Errorf("distractor %q has no form", part)
		}
		out = append(out, models.Distractor{Form: form, Meaning: strings.TrimSpace(meaning)})
	}
	return out, nil
}

func splitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
