package session

import "time"

// Summary aggregates a finished session's answers.
type Summary struct {
	Correct     int       `json:"correct"`
	Incorrect   int       `json:"incorrect"`
	Total       int       `json:"total"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Answers     []Answer  `json:"answers"`
	EarnedStars int       `json:"earnedStars"`
}

// Stars quantizes accuracy into a star award. A step function on purpose:
// perfect recall pays out disproportionately.
func Stars(correct, total int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct >= total {
		return 5
	}
	acc := float64(correct) / float64(total)
	switch {
	case acc >= 0.8:
		return 3
	case acc >= 0.6:
		return 1
	}
	return 0
}

func summarize(answers []Answer, start, end time.Time) *Summary {
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	return &Summary{
		Correct:     correct,
		Incorrect:   len(answers) - correct,
		Total:       len(answers),
		StartTime:   start,
		EndTime:     end,
		Answers:     answers,
		EarnedStars: Stars(correct, len(answers)),
	}
}
