// Package store persists students, tests, results and the activity log.
// SQLStore backs it with sqlite or postgres; MemoryStore keeps everything
// in process for tests and quick local runs.
package store

import (
	"context"
	"time"

	"github.com/mind-engage/testportal/internal/models"
)

// LoginFailure is the counter state after a failed password check.
// AlreadyLocked means a concurrent request locked the account first and the
// counter was left untouched.
type LoginFailure struct {
	Attempts      int
	LockedUntil   *time.Time
	AlreadyLocked bool
}

type StudentView struct {
	models.Student
	Username string `json:"username"`
}

// TestSummary is a test without its questions.
type TestSummary struct {
	models.Test
	QuestionCount int `json:"question_count"`
}

type ResultView struct {
	models.TestResult
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Group     string  `json:"group"`
	TestTitle string  `json:"test_title"`
	MaxScore  float64 `json:"max_score"`
}

type RankingEntry struct {
	StudentID  int64   `json:"student_id"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Group      string  `json:"group"`
	AvgScore   float64 `json:"avg_score"`
	TestsTaken int     `json:"tests_taken"`
}

type ActivityView struct {
	models.Activity
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Dashboard struct {
	Students         int `json:"total_students"`
	OnlineStudents   int `json:"online_students"`
	Tests            int `json:"total_tests"`
	ActiveTests      int `json:"active_tests"`
	CompletedResults int `json:"completed_tests"`
}

// Tx is the unit of work handed to InTx. Either every write made through it
// is committed or none is.
type Tx interface {
	CreateTestResult(ctx context.Context, r *models.TestResult) (int64, error)
	AppendActivity(ctx context.Context, a models.Activity) (int64, error)
	SetOnline(ctx context.Context, studentID int64, online bool) error
}

type Store interface {
	// students & credentials
	FindCredentialByUsername(ctx context.Context, username string) (models.Credential, error)
	CredentialForStudent(ctx context.Context, studentID int64) (models.Credential, error)
	GetStudent(ctx context.Context, id int64) (models.Student, error)
	ListStudents(ctx context.Context) ([]StudentView, error)
	CreateStudent(ctx context.Context, s models.Student, username, passwordHash string) (models.Student, error)
	UpdateStudent(ctx context.Context, s models.Student) error
	UpdateCredential(ctx context.Context, studentID int64, username, passwordHash string) error
	DeleteStudent(ctx context.Context, id int64) error
	RecordLoginSuccess(ctx context.Context, studentID int64, a models.Activity) error
	RecordLoginFailure(ctx context.Context, studentID int64, now time.Time, threshold int, lockFor time.Duration) (LoginFailure, error)
	SetOnline(ctx context.Context, studentID int64, online bool) error

	// catalog
	CreateTest(ctx context.Context, t models.Test) (models.Test, error)
	GetTest(ctx context.Context, id int64, activeOnly bool) (models.Test, error)
	ListTests(ctx context.Context, activeOnly bool) ([]TestSummary, error)
	UpdateTest(ctx context.Context, t models.Test) error
	DeleteTest(ctx context.Context, id int64) error

	// results & activity
	InTx(ctx context.Context, fn func(Tx) error) error
	ListResults(ctx context.Context, studentID int64) ([]ResultView, error)
	Ranking(ctx context.Context) ([]RankingEntry, error)
	AppendActivity(ctx context.Context, a models.Activity) (int64, error)
	ListActivity(ctx context.Context, limit int) ([]ActivityView, error)
	Counts(ctx context.Context) (Dashboard, error)

	Ping(ctx context.Context) error
}

const DefaultActivityLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultActivityLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
