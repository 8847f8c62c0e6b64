package entities

import (
	"errors"
	"fmt"
)

// ChoiceLayout fixes where the two options are drawn on screen
type ChoiceLayout string

const (
	// LayoutNoLeft draws "no" on the left and "yes" on the right
	LayoutNoLeft  ChoiceLayout = "no_left"
	LayoutYesLeft ChoiceLayout = "yes_left"
)

var ErrUnknownLayout = errors.New("unknown choice layout")

// Variant is one configuration of the test. Script variants that only differ
// in wording, choice placement or the presence of replay are all expressed here.
type Variant struct {
	Name            string       `mapstructure:"name" yaml:"name" json:"name"`
	HasReplay       bool         `mapstructure:"has_replay" yaml:"has_replay" json:"has_replay"`
	ChoiceLayout    ChoiceLayout `mapstructure:"choice_layout" yaml:"choice_layout" json:"choice_layout"`
	CalibrationCopy string       `mapstructure:"calibration_copy" yaml:"calibration_copy" json:"calibration_copy"`
	YesLabel        string       `mapstructure:"yes_label" yaml:"yes_label" json:"yes_label"`
	NoLabel         string       `mapstructure:"no_label" yaml:"no_label" json:"no_label"`
}

// DefaultVariant mirrors the Mandarin LexTALE setup without replay
func DefaultVariant() Variant {
	return Variant{
		Name:            "default",
		ChoiceLayout:    LayoutNoLeft,
		CalibrationCopy: "Click the button below to play a short tone. Adjust your volume so that you can hear it clearly.",
		YesLabel:        "A Mandarin word",
		NoLabel:         "NOT a Mandarin word",
	}
}

// WithDefaults fills empty fields from DefaultVariant
func (v Variant) WithDefaults() Variant {
	d := DefaultVariant()
	if v.ChoiceLayout == "" {
		v.ChoiceLayout = d.ChoiceLayout
	}
	if v.CalibrationCopy == "" {
		v.CalibrationCopy = d.CalibrationCopy
	}
	if v.YesLabel == "" {
		v.YesLabel = d.YesLabel
	}
	if v.NoLabel == "" {
		v.NoLabel = d.NoLabel
	}
	return v
}

// Validate checks the variant can be rendered
func (v Variant) Validate() error {
	if v.Name == "" {
		return errors.New("variant name is required")
	}
	switch v.ChoiceLayout {
	case LayoutNoLeft, LayoutYesLeft:
	default:
		return fmt.Errorf("variant %s: %w: %q", v.Name, ErrUnknownLayout, v.ChoiceLayout)
	}
	return nil
}

// Slots returns the options left to right
func (l ChoiceLayout) Slots() [2]Option {
	if l == LayoutYesLeft {
		return [2]Option{OptionYes, OptionNo}
	}
	return [2]Option{OptionNo, OptionYes}
}
