package entities

import (
	"strconv"
	"time"
)

// ResultRecord is the flattened, immutable output of one completed trial
type ResultRecord struct {
	Trial       int          `json:"Trial"`
	Stimulus    string       `json:"Stimulus"`
	Type        StimulusType `json:"Type"`
	Block       string       `json:"Block"`
	Order       int          `json:"Order"`
	Item        string       `json:"Item"`
	AudioFile   string       `json:"AudioFile"`
	Subject     string       `json:"Subject"`
	RTYes       ReactionTime `json:"RT_yes"`
	RTNo        ReactionTime `json:"RT_no"`
	ReplayCount *int         `json:"ReplayCount,omitempty"`
	Selected    Option       `json:"Selected"`
	Outcome     TrialOutcome `json:"Outcome"`
	CompletedAt time.Time    `json:"CompletedAt"`
}

// RecordColumns returns the export header. ReplayCount is only present for
// variants that offer replay.
func RecordColumns(replayable bool) []string {
	cols := []string{"Trial", "Stimulus", "Type", "Block", "Order", "Item", "Subject", "RT_yes", "RT_no"}
	if replayable {
		cols = append(cols, "ReplayCount")
	}
	return append(cols, "Selected", "Outcome")
}

// Row renders the record in RecordColumns order
func (r ResultRecord) Row(replayable bool) []string {
	row := []string{
		strconv.Itoa(r.Trial),
		r.Stimulus,
		string(r.Type),
		r.Block,
		strconv.Itoa(r.Order),
		r.Item,
		r.Subject,
		r.RTYes.String(),
		r.RTNo.String(),
	}
	if replayable {
		count := 0
		if r.ReplayCount != nil {
			count = *r.ReplayCount
		}
		row = append(row, strconv.Itoa(count))
	}
	return append(row, string(r.Selected), string(r.Outcome))
}

// Summary holds LexTALE-style scores for a session
type Summary struct {
	Trials            int     `json:"trials"`
	Responded         int     `json:"responded"`
	WordsCorrect      int     `json:"words_correct"`
	WordsTotal        int     `json:"words_total"`
	PseudowordCorrect int     `json:"pseudowords_correct"`
	PseudowordTotal   int     `json:"pseudowords_total"`
	Score             float64 `json:"score"`
	MeanRT            float64 `json:"mean_rt_ms"`
	RTStdDev          float64 `json:"rt_sd_ms"`
}

// ResultSet is everything a session hands to the result submitter
type ResultSet struct {
	SessionID    string         `json:"session_id"`
	Subject      string         `json:"subject"`
	Variant      string         `json:"variant"`
	Replayable   bool           `json:"replayable"`
	AudioLatency *int64         `json:"AudioLatency"`
	Records      []ResultRecord `json:"records"`
	Summary      Summary        `json:"summary"`
}
