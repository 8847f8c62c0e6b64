package stimuli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
)

var (
	ErrMissingColumn = errors.New("stimulus table is missing a required column")
	ErrEmptyTable    = errors.New("stimulus table has no rows")
)

// Columns of the stimulus table. Only AudioFile is required.
const (
	ColumnAudioFile = "AudioFile"
	ColumnStimulus  = "Stimulus"
	ColumnType      = "Type"
	ColumnBlock     = "Block"
	ColumnOrder     = "Order"
	ColumnItem      = "Item"
)

// CSVSource loads stimulus rows from a CSV file
type CSVSource struct {
	path        string
	sortByOrder bool
	logger      *zap.Logger
}

// NewCSVSource creates a stimulus source reading path. When sortByOrder is
// set, rows are presented by their Order column instead of file order.
func NewCSVSource(path string, sortByOrder bool, logger *zap.Logger) *CSVSource {
	return &CSVSource{
		path:        path,
		sortByOrder: sortByOrder,
		logger:      logger,
	}
}

// Load implements repositories.StimulusSource
func (s *CSVSource) Load(ctx context.Context) ([]entities.StimulusRow, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open stimulus table: %w", err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	if s.sortByOrder {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Order < rows[j].Order
		})
	}

	s.logger.Info("Stimulus table loaded",
		zap.String("path", s.path),
		zap.Int("rows", len(rows)),
		zap.Bool("sortByOrder", s.sortByOrder))
	return rows, nil
}

// Parse reads a stimulus table. Header names are matched case-insensitively
// and rows without an audio file are rejected.
func Parse(r io.Reader) ([]entities.StimulusRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index[strings.ToLower(ColumnAudioFile)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnAudioFile)
	}

	field := func(record []string, column string) string {
		i, ok := index[strings.ToLower(column)]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []entities.StimulusRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}

		row := entities.StimulusRow{
			AudioFile: field(record, ColumnAudioFile),
			Stimulus:  field(record, ColumnStimulus),
			Type:      entities.StimulusType(field(record, ColumnType)),
			Block:     field(record, ColumnBlock),
			Item:      field(record, ColumnItem),
		}
		if order := field(record, ColumnOrder); order != "" {
			row.Order, err = strconv.Atoi(order)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Order %q: %w", line, order, err)
			}
		}
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
