// Package attempt turns a graded submission into stored records.
package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/mind-engage/testportal/internal/grading"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(store.Tx) error) error
}

// Recorder writes the TestResult and its test_complete activity in one
// transaction. Re-submissions add new rows; nothing is ever updated.
type Recorder struct {
	Store TxRunner
	Now   func() time.Time
}

func NewRecorder(s TxRunner) *Recorder {
	return &Recorder{Store: s, Now: time.Now}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Recorder) RecordAttempt(ctx context.Context, student models.Student, test models.Test, res grading.Result, raw map[string]string) (int64, error) {
	now := r.now().UTC()
	result := &models.TestResult{
		StudentID:      student.ID,
		TestID:         test.ID,
		Score:          res.Score,
		TotalQuestions: res.TotalQuestions,
		CorrectAnswers: res.CorrectAnswers,
		AnswersData:    raw,
		CompletedAt:    now,
	}
	var id int64
	err := r.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if id, err = tx.CreateTestResult(ctx, result); err != nil {
			return err
		}
		_, err = tx.AppendActivity(ctx, CompletionActivity(student.ID, test.Title, res, now))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CompletionActivity is the log line written next to a stored result.
func CompletionActivity(studentID int64, title string, res grading.Result, at time.Time) models.Activity {
	return models.Activity{
		StudentID: studentID,
		Type:      models.ActivityTestComplete,
		Details:   fmt.Sprintf("completed %q with %.1f points", title, res.Rounded()),
		CreatedAt: at,
	}
}
