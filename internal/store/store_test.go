package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/db"
	"github.com/mind-engage/testportal/internal/models"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "portal.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	dbx, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	return NewSQLStore(dbx)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func mathTest() models.Test {
	return models.Test{
		Title:     "Math-1",
		TimeLimit: 30,
		MaxScore:  100,
		Active:    true,
		Questions: []models.Question{
			{Text: "2+2", Answers: []models.Answer{{Text: "4", IsCorrect: true}, {Text: "5"}}},
			{Text: "3*3", Answers: []models.Answer{{Text: "6"}, {Text: "9", IsCorrect: true}}},
		},
	}
}

func mustStudent(t *testing.T, s Store, username string) models.Student {
	t.Helper()
	st, err := s.CreateStudent(context.Background(),
		models.Student{FirstName: "Ann", LastName: "Lee", Group: "7B"}, username, "hash-"+username)
	require.NoError(t, err)
	return st
}

func TestStudentsAndCredentials(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := mustStudent(t, s, "ann")
		assert.NotZero(t, st.ID)

		cred, err := s.FindCredentialByUsername(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, st.ID, cred.StudentID)
		assert.Equal(t, "hash-ann", cred.PasswordHash)

		_, err = s.FindCredentialByUsername(ctx, "nobody")
		assert.True(t, apperr.Is(err, apperr.NotFound))

		_, err = s.CreateStudent(ctx, models.Student{FirstName: "B", LastName: "C"}, "ann", "x")
		assert.True(t, apperr.Is(err, apperr.Conflict), "got %v", err)

		_, err = s.CreateStudent(ctx, models.Student{FirstName: "", LastName: "C"}, "bob", "x")
		assert.True(t, apperr.Is(err, apperr.Validation))

		st.FirstName = "Anna"
		require.NoError(t, s.UpdateStudent(ctx, st))
		require.NoError(t, s.UpdateCredential(ctx, st.ID, "anna", ""))
		cred, err = s.CredentialForStudent(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, "anna", cred.Username)
		assert.Equal(t, "hash-ann", cred.PasswordHash)

		list, err := s.ListStudents(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Anna", list[0].FirstName)
		assert.Equal(t, "anna", list[0].Username)

		require.NoError(t, s.DeleteStudent(ctx, st.ID))
		_, err = s.FindCredentialByUsername(ctx, "anna")
		assert.True(t, apperr.Is(err, apperr.NotFound))
		assert.True(t, apperr.Is(s.DeleteStudent(ctx, st.ID), apperr.NotFound))
	})
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := mustStudent(t, s, "ann")
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

		for i := 1; i <= 2; i++ {
			f, err := s.RecordLoginFailure(ctx, st.ID, now, 3, 5*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, f.Attempts)
			assert.Nil(t, f.LockedUntil)
		}
		f, err := s.RecordLoginFailure(ctx, st.ID, now, 3, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 3, f.Attempts)
		require.NotNil(t, f.LockedUntil)
		assert.True(t, f.LockedUntil.Equal(now.Add(5*time.Minute)))

		f, err = s.RecordLoginFailure(ctx, st.ID, now.Add(time.Minute), 3, 5*time.Minute)
		require.NoError(t, err)
		assert.True(t, f.AlreadyLocked)
		assert.Equal(t, 3, f.Attempts)

		got, err := s.GetStudent(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.LoginAttempts)

		require.NoError(t, s.RecordLoginSuccess(ctx, st.ID, models.Activity{Type: models.ActivityLogin}))
		got, err = s.GetStudent(ctx, st.ID)
		require.NoError(t, err)
		assert.Zero(t, got.LoginAttempts)
		assert.Nil(t, got.LockedUntil)
		assert.True(t, got.Online)

		acts, err := s.ListActivity(ctx, 10)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		assert.Equal(t, models.ActivityLogin, acts[0].Type)
	})
}

func TestRecordLoginFailureConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := mustStudent(t, s, "ann")
		now := time.Now()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RecordLoginFailure(ctx, st.ID, now, 3, 5*time.Minute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.GetStudent(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.LoginAttempts)
		require.NotNil(t, got.LockedUntil)
	})
}

func TestCatalog(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.CreateTest(ctx, mathTest())
		require.NoError(t, err)
		require.Len(t, created.Questions, 2)
		assert.NotZero(t, created.Questions[0].Answers[0].ID)

		got, err := s.GetTest(ctx, created.ID, true)
		require.NoError(t, err)
		assert.Equal(t, "Math-1", got.Title)
		require.Len(t, got.Questions, 2)
		assert.Equal(t, "2+2", got.Questions[0].Text)
		assert.Equal(t, created.Questions[1].Answers[1].ID, got.Questions[1].Answers[1].ID)
		assert.True(t, got.Questions[1].Answers[1].IsCorrect)

		got.Active = false
		got.Questions = nil
		require.NoError(t, s.UpdateTest(ctx, got))

		_, err = s.GetTest(ctx, created.ID, true)
		assert.True(t, apperr.Is(err, apperr.NotFound))
		inactive, err := s.GetTest(ctx, created.ID, false)
		require.NoError(t, err)
		assert.Len(t, inactive.Questions, 2)

		active, err := s.ListTests(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, active)
		all, err := s.ListTests(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 2, all[0].QuestionCount)

		bad := mathTest()
		bad.Questions[0].Answers[1].IsCorrect = true
		_, err = s.CreateTest(ctx, bad)
		assert.True(t, apperr.Is(err, apperr.Validation))

		require.NoError(t, s.DeleteTest(ctx, created.ID))
		_, err = s.GetTest(ctx, created.ID, false)
		assert.True(t, apperr.Is(err, apperr.NotFound))
	})
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := mustStudent(t, s, "ann")
		tst, err := s.CreateTest(ctx, mathTest())
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.InTx(ctx, func(tx Tx) error {
			_, err := tx.CreateTestResult(ctx, &models.TestResult{StudentID: st.ID, TestID: tst.ID, TotalQuestions: 2})
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		res, err := s.ListResults(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, res)

		err = s.InTx(ctx, func(tx Tx) error {
			for _, score := range []float64{50, 100} {
				if _, err := tx.CreateTestResult(ctx, &models.TestResult{
					StudentID: st.ID, TestID: tst.ID, Score: score, TotalQuestions: 2,
					AnswersData: map[string]string{"1": "11"},
				}); err != nil {
					return err
				}
			}
			_, err := tx.AppendActivity(ctx, models.Activity{StudentID: st.ID, Type: models.ActivityTestComplete})
			return err
		})
		require.NoError(t, err)

		res, err = s.ListResults(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "Math-1", res[0].TestTitle)
		assert.Equal(t, "11", res[0].AnswersData["1"])

		rank, err := s.Ranking(ctx)
		require.NoError(t, err)
		require.Len(t, rank, 1)
		assert.InDelta(t, 75, rank[0].AvgScore, 1e-9)
		assert.Equal(t, 2, rank[0].TestsTaken)

		d, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, Dashboard{Students: 1, Tests: 1, ActiveTests: 1, CompletedResults: 2}, d)
	})
}

func TestRankingEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		mustStudent(t, s, "ann")
		rank, err := s.Ranking(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, rank)
		assert.Empty(t, rank)
	})
}
