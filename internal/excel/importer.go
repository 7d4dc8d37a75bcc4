package excel

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/example/vocabreview/pkg/models"
)

// ItemWriter stores imported items. It reports whether the item was new.
type ItemWriter interface {
	Upsert(ctx context.Context, item models.Item) (bool, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath            string // Path to the Excel, CSV or JSON file
	Level               int    // Level the items are imported into
	TextColumn          string // Column with the character or word
	PronunciationColumn string // Column with the pinyin
	MeaningColumn       string // Column with the meaning
	ExplanationColumn   string // Column with the explanation, optional
	IDColumn            string // Column with a stable id, optional (defaults to the text)
	SheetName           string // Name of the sheet to import, empty for the first sheet
	StartRow            int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Level:               models.CustomLevel,
		TextColumn:          "A",
		PronunciationColumn: "B",
		MeaningColumn:       "C",
		ExplanationColumn:   "D",
		StartRow:            2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// ImportItems imports items from an .xlsx, .csv or .json file into config.Level.
func ImportItems(ctx context.Context, config ImportConfig, w ItemWriter) (*ImportResult, error) {
	switch strings.ToLower(filepath.Ext(config.FilePath)) {
	case ".csv":
		return importFromCSV(ctx, config, w)
	case ".json":
		return importFromJSON(ctx, config, w)
	case ".xlsx", ".xlsm":
		return importFromExcel(ctx, config, w)
	}
	return nil, errors.Errorf("unsupported file type %q", filepath.Ext(config.FilePath))
}

// importFromExcel imports items from an Excel file
func importFromExcel(ctx context.Context, config ImportConfig, w ItemWriter) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows")
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		processRow(ctx, row, config, w, result, i+1)
	}
	return result, nil
}

// importFromCSV imports items from a CSV file laid out like the Excel sheet
func importFromCSV(ctx context.Context, config ImportConfig, w ItemWriter) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{Errors: make([]string, 0)}
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "error reading CSV")
		}

		rowNum++
		if rowNum < config.StartRow {
			continue
		}
		processRow(ctx, row, config, w, result, rowNum)
	}
	return result, nil
}

// jsonItem is one entry of a level data file.
type jsonItem struct {
	ID          string `json:"id"`
	Char        string `json:"char"`
	Pinyin      string `json:"pinyin"`
	Meaning     string `json:"meaning"`
	Explanation string `json:"explanation"`
}

// importFromJSON imports a JSON array of {char, pinyin, meaning, explanation}
func importFromJSON(ctx context.Context, config ImportConfig, w ItemWriter) (*ImportResult, error) {
	data, err := os.ReadFile(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read JSON file")
	}
	var entries []jsonItem
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON file")
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, e := range entries {
		id := e.ID
		if id == "" {
			id = e.Char
		}
		saveItem(ctx, models.Item{
			ID:            id,
			Level:         config.Level,
			Text:          e.Char,
			Pronunciation: e.Pinyin,
			Meaning:       e.Meaning,
			Explanation:   e.Explanation,
		}, w, result, i+1)
	}
	return result, nil
}

// processRow processes a single row from Excel or CSV
func processRow(ctx context.Context, row []string, config ImportConfig, w ItemWriter, result *ImportResult, rowNum int) {
	item := models.Item{
		Level:         config.Level,
		Text:          cell(row, config.TextColumn),
		Pronunciation: cell(row, config.PronunciationColumn),
		Meaning:       cell(row, config.MeaningColumn),
		Explanation:   cell(row, config.ExplanationColumn),
		ID:            cell(row, config.IDColumn),
	}
	if item.ID == "" {
		item.ID = item.Text
	}
	saveItem(ctx, item, w, result, rowNum)
}

func saveItem(ctx context.Context, item models.Item, w ItemWriter, result *ImportResult, rowNum int) {
	result.TotalProcessed++

	item.ID = strings.TrimSpace(item.ID)
	item.Text = strings.TrimSpace(item.Text)
	item.Pronunciation = strings.TrimSpace(item.Pronunciation)
	item.Meaning = strings.TrimSpace(item.Meaning)
	item.Explanation = strings.TrimSpace(item.Explanation)

	if item.Text == "" && item.Meaning == "" {
		// blank line
		result.Skipped++
		return
	}
	if item.Text == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: text cannot be empty", rowNum))
		return
	}
	if item.Meaning == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: meaning cannot be empty", rowNum))
		return
	}

	created, err := w.Upsert(ctx, item)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		return
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
