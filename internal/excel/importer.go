package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/tutorbot/pkg/models"
)

// TopicStore is the part of the progress store the importer writes to
type TopicStore interface {
	GetTopicByTitle(ctx context.Context, title string) (*models.Topic, error)
	CreateTopic(ctx context.Context, topic *models.Topic) error
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath            string // Path to the Excel or CSV file
	TitleColumn         string // Column with the topic title
	DifficultyColumn    string // Column with the difficulty (level name or 1-5)
	PrerequisitesColumn string // Column with comma separated prerequisite titles
	ContentColumn       string // Column with the topic content
	SheetName           string // Sheet to import, the first one when empty
	StartRow            int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TitleColumn:         "A",
		DifficultyColumn:    "B",
		PrerequisitesColumn: "C",
		ContentColumn:       "D",
		StartRow:            2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// ImportTopics imports a topic catalog from an Excel or CSV file.
// Rows are applied in order, so a prerequisite must exist already or appear
// on an earlier row. Topics whose title is already stored are left untouched.
func ImportTopics(ctx context.Context, store TopicStore, config ImportConfig) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, err
	}

	imp := &importer{
		store:  store,
		config: config,
		ids:    make(map[string]int64),
		result: &ImportResult{Errors: make([]string, 0)},
	}
	for i, row := range rows {
		if i < config.StartRow-1 || blank(row) {
			continue
		}
		imp.result.TotalProcessed++
		if err := imp.processRow(ctx, row); err != nil {
			if ctx.Err() != nil {
				return imp.result, ctx.Err()
			}
			imp.result.Errors = append(imp.result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}
	return imp.result, nil
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
			return nil, fmt.Errorf("workbook has no sheets")
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

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type importer struct {
	store  TopicStore
	config ImportConfig
	ids    map[string]int64 // lower-cased title -> ID
	result *ImportResult
}

func (imp *importer) processRow(ctx context.Context, row []string) error {
	title := cell(row, imp.config.TitleColumn)
	if title == "" {
		return fmt.Errorf("title cannot be empty")
	}

	existing, err := imp.lookup(ctx, title)
	if err != nil {
		return err
	}
	if existing != 0 {
		imp.result.Skipped++
		return nil
	}

	difficulty, err := parseDifficulty(cell(row, imp.config.DifficultyColumn))
	if err != nil {
		return err
	}

	var prereqs models.TopicIDs
	for _, name := range strings.Split(cell(row, imp.config.PrerequisitesColumn), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := imp.lookup(ctx, name)
		if err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("unknown prerequisite %q", name)
		}
		prereqs = append(prereqs, id)
	}

	topic := &models.Topic{
		Title:         title,
		Difficulty:    difficulty,
		Prerequisites: prereqs,
		Content:       cell(row, imp.config.ContentColumn),
	}
	if err := imp.store.CreateTopic(ctx, topic); err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	imp.ids[strings.ToLower(title)] = topic.ID
	imp.result.Created++
	return nil
}

// lookup resolves a title to an ID, 0 when no such topic exists
func (imp *importer) lookup(ctx context.Context, title string) (int64, error) {
	key := strings.ToLower(title)
	if id, ok := imp.ids[key]; ok {
		return id, nil
	}
	topic, err := imp.store.GetTopicByTitle(ctx, title)
	if models.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up topic %q: %w", title, err)
	}
	imp.ids[key] = topic.ID
	return topic.ID, nil
}

// parseDifficulty accepts a level name or the 1-5 scale used by older sheets
func parseDifficulty(s string) (models.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.LevelBeginner, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n <= 2:
			return models.LevelBeginner, nil
		case n == 3:
			return models.LevelIntermediate, nil
		default:
			return models.LevelAdvanced, nil
		}
	}
	return models.ParseLevel(s)
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
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
