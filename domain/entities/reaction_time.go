package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotAvailable is the literal written for a reaction time that was not measured
const NotAvailable = "NA"

// ReactionTime is a non-negative millisecond count, or NA when nothing was measured
type ReactionTime struct {
	ms    int64
	valid bool
}

// NA returns an unmeasured reaction time
func NA() ReactionTime {
	return ReactionTime{}
}

// Millis returns a measured reaction time. Negative values are clamped to zero.
func Millis(ms int64) ReactionTime {
	if ms < 0 {
		ms = 0
	}
	return ReactionTime{ms: ms, valid: true}
}

// Elapsed measures the reaction time between two instants
func Elapsed(from, to time.Time) ReactionTime {
	return Millis(to.Sub(from).Milliseconds())
}

// Valid reports whether the value is numeric
func (r ReactionTime) Valid() bool {
	return r.valid
}

// Milliseconds returns the numeric value and whether it is set
func (r ReactionTime) Milliseconds() (int64, bool) {
	return r.ms, r.valid
}

func (r ReactionTime) String() string {
	if !r.valid {
		return NotAvailable
	}
	return strconv.FormatInt(r.ms, 10)
}

// MarshalJSON renders NA as the string "NA" and measured values as numbers
func (r ReactionTime) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return json.Marshal(NotAvailable)
	}
	return []byte(strconv.FormatInt(r.ms, 10)), nil
}

// UnmarshalJSON accepts a number, "NA" or null
func (r *ReactionTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = NA()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return r.parse(s)
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid reaction time %s: %w", data, err)
	}
	*r = Millis(ms)
	return nil
}

// ParseReactionTime parses the textual form produced by String
func ParseReactionTime(s string) (ReactionTime, error) {
	var r ReactionTime
	err := r.parse(s)
	return r, err
}

func (r *ReactionTime) parse(s string) error {
	if s == "" || s == NotAvailable {
		*r = NA()
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reaction time %q: %w", s, err)
	}
	*r = Millis(ms)
	return nil
}
