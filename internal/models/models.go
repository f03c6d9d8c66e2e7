package models

import (
	"strings"
	"time"

	"github.com/mind-engage/testportal/internal/apperr"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

const (
	ActivityLogin        = "login"
	ActivityLogout       = "logout"
	ActivityTestComplete = "test_complete"
)

type Student struct {
	ID            int64      `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Group         string     `json:"group"`
	Online        bool       `json:"is_online"`
	LoginAttempts int        `json:"login_attempts"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FullName renders "Last First", the way class lists are printed.
func (s Student) FullName() string {
	return strings.TrimSpace(s.LastName + " " + s.FirstName)
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.FirstName) == "" || strings.TrimSpace(s.LastName) == "" {
		return apperr.New(apperr.Validation, "first_name and last_name are required")
	}
	return nil
}

// Credential is the login record owned 1:1 by a Student.
type Credential struct {
	StudentID    int64  `json:"student_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

type Question struct {
	ID      int64    `json:"id"`
	TestID  int64    `json:"test_id"`
	Text    string   `json:"text"`
	Order   int      `json:"order"`
	Answers []Answer `json:"answers"`
}

type Test struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	TimeLimit   int        `json:"time_limit"` // minutes
	MaxScore    float64    `json:"max_score"`
	Active      bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	Questions   []Question `json:"questions,omitempty"`
}

// Validate checks a test before it is stored. Every question must carry
// exactly one correct answer.
func (t Test) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return apperr.New(apperr.Validation, "title is required")
	}
	if t.TimeLimit < 0 {
		return apperr.New(apperr.Validation, "time_limit must not be negative")
	}
	if t.MaxScore < 0 {
		return apperr.New(apperr.Validation, "max_score must not be negative")
	}
	for i, q := range t.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return apperr.Newf(apperr.Validation, "question %d: text is required", i+1)
		}
		correct := 0
		for _, a := range q.Answers {
			if a.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return apperr.Newf(apperr.Validation, "question %d: exactly one correct answer is required, got %d", i+1, correct)
		}
	}
	return nil
}

// TestResult is written once per submission and never updated.
type TestResult struct {
	ID             int64             `json:"id"`
	StudentID      int64             `json:"student_id"`
	TestID         int64             `json:"test_id"`
	Score          float64           `json:"score"`
	TotalQuestions int               `json:"total_questions"`
	CorrectAnswers int               `json:"correct_answers"`
	AnswersData    map[string]string `json:"answers_data"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// Activity is an append-only log line about a student action.
type Activity struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Type      string    `json:"activity_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
