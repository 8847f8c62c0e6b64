package usecase

import (
	"math"

	"github.com/satriahrh/lextale/domain/entities"
)

// Score computes the LexTALE summary of a session. The score is the average
// of the percentage of words and of pseudowords answered correctly. Reaction
// time statistics cover responded trials only.
func Score(records []entities.ResultRecord, labels entities.TypeLabels) entities.Summary {
	var s entities.Summary
	var rts []float64

	s.Trials = len(records)
	for _, rec := range records {
		isWord := labels.IsWord(rec.Type)
		isPseudo := labels.IsPseudoword(rec.Type)
		if isWord {
			s.WordsTotal++
		}
		if isPseudo {
			s.PseudowordTotal++
		}

		if rec.Outcome != entities.TrialOutcomeResponded {
			continue
		}
		s.Responded++

		switch {
		case isWord && rec.Selected == entities.OptionYes:
			s.WordsCorrect++
		case isPseudo && rec.Selected == entities.OptionNo:
			s.PseudowordCorrect++
		}

		if ms, ok := rec.RTYes.Milliseconds(); ok {
			rts = append(rts, float64(ms))
		} else if ms, ok := rec.RTNo.Milliseconds(); ok {
			rts = append(rts, float64(ms))
		}
	}

	s.Score = (percent(s.WordsCorrect, s.WordsTotal) + percent(s.PseudowordCorrect, s.PseudowordTotal)) / 2
	s.MeanRT = mean(rts)
	s.RTStdDev = stdDev(rts)
	return s
}

func percent(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	avg := mean(values)
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - avg
		sumSquaredDiff += diff * diff
	}

	variance := sumSquaredDiff / float64(len(values))
	return math.Sqrt(variance)
}
