package attempt

import (
	"context"
	"fmt"
	"log"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/grading"
	"github.com/mind-engage/testportal/internal/models"
)

type Catalog interface {
	GetTest(ctx context.Context, id int64, activeOnly bool) (models.Test, error)
}

type Students interface {
	GetStudent(ctx context.Context, id int64) (models.Student, error)
}

// EventSink receives activity after it has been committed.
type EventSink interface {
	Publish(a models.Activity)
}

// Receipt is what the student sees after submitting.
type Receipt struct {
	ResultID       int64   `json:"result_id"`
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	Message        string  `json:"message"`
}

type Service struct {
	Catalog  Catalog
	Students Students
	Recorder *Recorder
	Events   EventSink // optional
}

// Submit grades and stores one submission. The test is looked up without
// the active filter so a student who opened a test before it was
// deactivated can still hand it in.
func (s *Service) Submit(ctx context.Context, studentID, testID int64, raw map[string]grading.FlexibleID) (Receipt, error) {
	if testID <= 0 {
		return Receipt{}, apperr.New(apperr.Validation, "test_id is required")
	}
	sub, audit, err := grading.ParseSubmission(raw)
	if err != nil {
		return Receipt{}, err
	}
	student, err := s.Students.GetStudent(ctx, studentID)
	if err != nil {
		return Receipt{}, err
	}
	test, err := s.Catalog.GetTest(ctx, testID, false)
	if err != nil {
		return Receipt{}, err
	}
	res, err := grading.Score(test, sub)
	if err != nil {
		log.Printf("grading test %d: %v", test.ID, err)
		return Receipt{}, err
	}
	id, err := s.Recorder.RecordAttempt(ctx, student, test, res, audit)
	if err != nil {
		return Receipt{}, err
	}
	if s.Events != nil {
		s.Events.Publish(CompletionActivity(student.ID, test.Title, res, s.Recorder.now().UTC()))
	}
	return Receipt{
		ResultID:       id,
		Score:          res.Rounded(),
		CorrectAnswers: res.CorrectAnswers,
		TotalQuestions: res.TotalQuestions,
		Message:        fmt.Sprintf("Test completed! You scored %.1f points.", res.Rounded()),
	}, nil
}
