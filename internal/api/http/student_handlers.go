package http

import (
	"net/http"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/attempt"
	"github.com/mind-engage/testportal/internal/auth"
	"github.com/mind-engage/testportal/internal/grading"
	"github.com/mind-engage/testportal/internal/store"
)

// publicAnswer hides is_correct from students.
type publicAnswer struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type publicQuestion struct {
	ID      int64          `json:"id"`
	Text    string         `json:"text"`
	Order   int            `json:"order"`
	Answers []publicAnswer `json:"answers"`
}

// GET /api/tests lists active tests and the caller's own results.
func ListActiveTestsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tests, err := s.ListTests(r.Context(), true)
		if err != nil {
			writeError(w, err)
			return
		}
		results := []store.ResultView{}
		if sid, ok := auth.SessionFromContext(r.Context()).StudentID(); ok {
			if results, err = s.ListResults(r.Context(), sid); err != nil {
				writeError(w, err)
				return
			}
		}
		writeOK(w, http.StatusOK, envelope{"tests": tests, "results": results})
	}
}

// GET /api/tests/{testID}/questions
func TestQuestionsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "testID")
		if err != nil {
			writeError(w, err)
			return
		}
		t, err := s.GetTest(r.Context(), id, true)
		if err != nil {
			writeError(w, err)
			return
		}
		qs := make([]publicQuestion, 0, len(t.Questions))
		for _, q := range t.Questions {
			pq := publicQuestion{ID: q.ID, Text: q.Text, Order: q.Order, Answers: make([]publicAnswer, 0, len(q.Answers))}
			for _, a := range q.Answers {
				pq.Answers = append(pq.Answers, publicAnswer{ID: a.ID, Text: a.Text})
			}
			qs = append(qs, pq)
		}
		t.Questions = nil
		writeOK(w, http.StatusOK, envelope{"test": t, "questions": qs})
	}
}

// GET /api/results returns the caller's own results; admins get every
// result.
func ResultsForCallerHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		var sid int64
		if !sess.IsAdmin() {
			id, ok := sess.StudentID()
			if !ok {
				forbidden(w, "no student in session")
				return
			}
			sid = id
		}
		results, err := s.ListResults(r.Context(), sid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"results": results})
	}
}

// POST /api/submit-test  {"test_id": 1, "answers": {"<questionId>": "<answerId>"}}
func SubmitTestHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, ok := auth.SessionFromContext(r.Context()).StudentID()
		if !ok {
			forbidden(w, "only students can submit tests")
			return
		}
		var req struct {
			TestID  grading.FlexibleID             `json:"test_id"`
			Answers *map[string]grading.FlexibleID `json:"answers"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		testID, err := req.TestID.Int64()
		if err != nil || testID <= 0 {
			writeError(w, apperr.New(apperr.Validation, "test_id is required"))
			return
		}
		if req.Answers == nil {
			writeError(w, apperr.New(apperr.Validation, "answers are required"))
			return
		}
		rcpt, err := svc.Submit(r.Context(), sid, testID, *req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{
			"result_id":       rcpt.ResultID,
			"score":           rcpt.Score,
			"correct_answers": rcpt.CorrectAnswers,
			"total_questions": rcpt.TotalQuestions,
			"message":         rcpt.Message,
		})
	}
}
