package grading

import (
	"math"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/models"
)

// Result is the outcome of scoring one submission against one test.
type Result struct {
	Score          float64 `json:"score"` // full precision
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
}

// Rounded returns the score rounded to one decimal for display.
func (r Result) Rounded() float64 {
	return math.Round(r.Score*10) / 10
}

// Score grades a submission. The denominator is the full question count of
// the test, so unanswered questions count as wrong. Submitted question ids
// that do not belong to the test and unknown answer ids are ignored.
//
// Score never touches storage and returns the same result for the same input.
func Score(t models.Test, sub Submission) (Result, error) {
	res := Result{TotalQuestions: len(t.Questions)}
	if res.TotalQuestions == 0 {
		return res, nil
	}
	for _, q := range t.Questions {
		correctID, err := correctAnswerID(q)
		if err != nil {
			return Result{}, err
		}
		chosen, ok := sub[q.ID]
		if !ok {
			continue
		}
		if chosen == correctID {
			res.CorrectAnswers++
		}
	}
	res.Score = float64(res.CorrectAnswers) / float64(res.TotalQuestions) * t.MaxScore
	return res, nil
}

func correctAnswerID(q models.Question) (int64, error) {
	var (
		id    int64
		found int
	)
	for _, a := range q.Answers {
		if a.IsCorrect {
			id = a.ID
			found++
		}
	}
	if found != 1 {
		return 0, apperr.Newf(apperr.Integrity, "question %d has %d correct answers, want exactly 1", q.ID, found)
	}
	return id, nil
}
