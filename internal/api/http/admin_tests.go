package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

type answerInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type questionInput struct {
	Text    string        `json:"text"`
	Order   int           `json:"order"`
	Answers []answerInput `json:"answers"`
}

// testInput is the body of create and update. Pointer fields tell an
// absent key from a zero value.
type testInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	TimeLimit   *int             `json:"time_limit"`
	MaxScore    *float64         `json:"max_score"`
	Active      *bool            `json:"is_active"`
	Questions   *[]questionInput `json:"questions"`
}

// newTest builds a test for create: 60 minutes, 100 points and active
// unless the body says otherwise.
func (in testInput) newTest() models.Test {
	return in.applyTo(models.Test{TimeLimit: 60, MaxScore: 100, Active: true})
}

// applyTo overwrites only the fields present in the body. Questions stay
// nil when the key was absent so the store keeps the current set.
func (in testInput) applyTo(t models.Test) models.Test {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.TimeLimit != nil {
		t.TimeLimit = *in.TimeLimit
	}
	if in.MaxScore != nil {
		t.MaxScore = *in.MaxScore
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	t.Questions = nil
	if in.Questions != nil {
		t.Questions = make([]models.Question, 0, len(*in.Questions))
		for _, q := range *in.Questions {
			mq := models.Question{Text: q.Text, Order: q.Order}
			for _, a := range q.Answers {
				mq.Answers = append(mq.Answers, models.Answer{Text: a.Text, IsCorrect: a.IsCorrect})
			}
			t.Questions = append(t.Questions, mq)
		}
	}
	return t
}

// GET /api/admin/dashboard
func DashboardHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.Counts(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"stats": d})
	}
}

func ListAllTestsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tests, err := s.ListTests(r.Context(), false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"tests": tests})
	}
}

// POST /api/admin/tests creates the test with all questions and answers in
// one transaction.
func CreateTestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in testInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		t, err := s.CreateTest(r.Context(), in.newTest())
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, envelope{"test": t, "message": "Test created."})
	}
}

// GET /api/admin/tests/{testID} returns the full test including answer keys.
func GetTestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "testID")
		if err != nil {
			writeError(w, err)
			return
		}
		t, err := s.GetTest(r.Context(), id, false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"test": t})
	}
}

// PUT /api/admin/tests/{testID} changes only the fields in the body.
func UpdateTestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "testID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in testInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		cur, err := s.GetTest(r.Context(), id, false)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.UpdateTest(r.Context(), in.applyTo(cur)); err != nil {
			writeError(w, err)
			return
		}
		updated, err := s.GetTest(r.Context(), id, false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"test": updated, "message": "Test updated."})
	}
}

func DeleteTestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "testID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.DeleteTest(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"message": "Test deleted."})
	}
}
