package submit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/satriahrh/lextale/domain/entities"
)

// ColumnAudioLatency carries the session's calibration result on every row
const ColumnAudioLatency = "AudioLatency"

// WriteCSV writes one row per record, in completion order
func WriteCSV(w io.Writer, results entities.ResultSet) error {
	writer := csv.NewWriter(w)

	header := append(entities.RecordColumns(results.Replayable), ColumnAudioLatency)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	latency := entities.NotAvailable
	if results.AudioLatency != nil {
		latency = strconv.FormatInt(*results.AudioLatency, 10)
	}

	for _, rec := range results.Records {
		row := append(rec.Row(results.Replayable), latency)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write trial %d: %w", rec.Trial, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
