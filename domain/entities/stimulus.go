package entities

import (
	"errors"
	"strings"
)

// StimulusType labels a stimulus as a real word or a pseudoword
type StimulusType string

const (
	StimulusTypeWord       StimulusType = "word"
	StimulusTypePseudoword StimulusType = "pseudoword"
)

var ErrMissingAudioFile = errors.New("stimulus row has no audio file")

// StimulusRow is one row of the stimulus table; one trial is run per row
type StimulusRow struct {
	AudioFile string       `json:"AudioFile" bson:"audio_file"`
	Stimulus  string       `json:"Stimulus" bson:"stimulus"`
	Type      StimulusType `json:"Type" bson:"type"`
	Block     string       `json:"Block" bson:"block"`
	Order     int          `json:"Order" bson:"order"`
	Item      string       `json:"Item" bson:"item"`
}

// Validate checks the fields the trial engine depends on
func (r StimulusRow) Validate() error {
	if strings.TrimSpace(r.AudioFile) == "" {
		return ErrMissingAudioFile
	}
	return nil
}

// TypeLabels maps domain-specific type labels onto words and pseudowords.
// Matching is case-insensitive.
type TypeLabels struct {
	Words       []string `mapstructure:"words" yaml:"words"`
	Pseudowords []string `mapstructure:"pseudowords" yaml:"pseudowords"`
}

// DefaultTypeLabels returns the canonical labels
func DefaultTypeLabels() TypeLabels {
	return TypeLabels{
		Words:       []string{string(StimulusTypeWord)},
		Pseudowords: []string{string(StimulusTypePseudoword), "nonword"},
	}
}

// IsWord reports whether t is one of the word labels
func (l TypeLabels) IsWord(t StimulusType) bool {
	return containsFold(l.Words, string(t))
}

// IsPseudoword reports whether t is one of the pseudoword labels
func (l TypeLabels) IsPseudoword(t StimulusType) bool {
	return containsFold(l.Pseudowords, string(t))
}

func containsFold(labels []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, l := range labels {
		if strings.EqualFold(l, v) {
			return true
		}
	}
	return false
}
