package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/testportal/internal/attempt"
	"github.com/mind-engage/testportal/internal/auth"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

type harness struct {
	srv   *httptest.Server
	store *store.MemoryStore
	clock *time.Time
	test  models.Test
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = ms.CreateStudent(ctx, models.Student{FirstName: "Ali", LastName: "Valiyev", Group: "10-A"}, "ali", string(hash))
	require.NoError(t, err)

	tst, err := ms.CreateTest(ctx, models.Test{
		Title:     "Math-1",
		TimeLimit: 30,
		MaxScore:  100,
		Active:    true,
		Questions: []models.Question{
			{Text: "2+2", Answers: []models.Answer{{Text: "4", IsCorrect: true}, {Text: "5"}}},
			{Text: "3*3", Answers: []models.Answer{{Text: "6"}, {Text: "9", IsCorrect: true}}},
		},
	})
	require.NoError(t, err)

	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	h := &harness{store: ms, clock: &now, test: tst}

	policy := auth.NewLoginPolicy(ms, "admin", string(adminHash))
	policy.Now = func() time.Time { return *h.clock }

	d := Deps{
		Store:        ms,
		Auth:         auth.NewAuthService("test-secret", time.Hour),
		Policy:       policy,
		Submit:       &attempt.Service{Catalog: ms, Students: ms, Recorder: attempt.NewRecorder(ms)},
		PasswordCost: bcrypt.MinCost,
	}
	h.srv = httptest.NewServer(Routes(d))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (h *harness) login(t *testing.T, user, pass string) string {
	t.Helper()
	code, body := h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, code, body)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestStudentFlow_LoginSubmitResults(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "ali", "secret1")

	code, body := h.do(t, http.MethodGet, "/api/tests", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tests"], 1)

	path := "/api/tests/" + strconv.FormatInt(h.test.ID, 10) + "/questions"
	code, body = h.do(t, http.MethodGet, path, tok, nil)
	require.Equal(t, http.StatusOK, code)
	qs := body["questions"].([]any)
	require.Len(t, qs, 2)
	firstAnswer := qs[0].(map[string]any)["answers"].([]any)[0].(map[string]any)
	_, leaked := firstAnswer["is_correct"]
	assert.False(t, leaked, "answer key must not reach students")

	q1, q2 := h.test.Questions[0], h.test.Questions[1]
	answers := map[string]any{
		strconv.FormatInt(q1.ID, 10): q1.Answers[0].ID,                        // correct
		strconv.FormatInt(q2.ID, 10): strconv.FormatInt(q2.Answers[0].ID, 10), // wrong, sent as string
	}
	code, body = h.do(t, http.MethodPost, "/api/submit-test", tok, map[string]any{"test_id": h.test.ID, "answers": answers})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 50.0, body["score"])
	assert.Equal(t, 1.0, body["correct_answers"])
	assert.Equal(t, 2.0, body["total_questions"])
	assert.Equal(t, "Test completed! You scored 50.0 points.", body["message"])

	code, body = h.do(t, http.MethodGet, "/api/tests", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["results"], 1)

	code, _ = h.do(t, http.MethodPost, "/api/logout", tok, nil)
	assert.Equal(t, http.StatusOK, code)
	st, err := h.store.GetStudent(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, st.Online)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "ali", "secret1")

	code, body := h.do(t, http.MethodPost, "/api/submit-test", tok, map[string]any{"test_id": h.test.ID})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, _ = h.do(t, http.MethodPost, "/api/submit-test", tok, map[string]any{"test_id": 999, "answers": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodPost, "/api/submit-test", tok, map[string]any{"test_id": h.test.ID, "answers": map[string]any{"abc": 1}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLogin_LockoutOverHTTP(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		code, body := h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "ali", "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, code, "attempt %d", i+1)
		assert.Equal(t, "wrong password", body["error"])
	}

	code, body := h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "ali", "password": "secret1"})
	require.Equal(t, http.StatusLocked, code)
	assert.Equal(t, 5.0, body["remaining_minutes"])

	*h.clock = h.clock.Add(3 * time.Minute)
	code, body = h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "ali", "password": "secret1"})
	require.Equal(t, http.StatusLocked, code)
	assert.Equal(t, 2.0, body["remaining_minutes"])

	*h.clock = h.clock.Add(3 * time.Minute)
	h.login(t, "ali", "secret1")
}

func TestLogin_Errors(t *testing.T) {
	h := newHarness(t)
	code, _ := h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "ghost", "password": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["is_admin"])
	_, hasStudent := body["student_id"]
	assert.False(t, hasStudent)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodGet, "/api/admin/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	tok := h.login(t, "ali", "secret1")
	for _, p := range []string{"/api/admin/dashboard", "/api/admin/tests", "/api/admin/students", "/api/admin/ranking", "/api/admin/activity"} {
		code, _ := h.do(t, http.MethodGet, p, tok, nil)
		assert.Equal(t, http.StatusForbidden, code, p)
	}

	admin := h.login(t, "admin", "admin123")
	code, _ = h.do(t, http.MethodPost, "/api/submit-test", admin, map[string]any{"test_id": h.test.ID, "answers": map[string]any{}})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdmin_TestCRUD(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin123")

	code, body := h.do(t, http.MethodPost, "/api/admin/tests", admin, map[string]any{
		"title": "History",
		"questions": []map[string]any{
			{"text": "Year?", "answers": []map[string]any{{"text": "1991", "is_correct": true}, {"text": "1989"}}},
		},
	})
	require.Equal(t, http.StatusCreated, code, body)
	created := body["test"].(map[string]any)
	assert.Equal(t, 60.0, created["time_limit"])
	assert.Equal(t, 100.0, created["max_score"])
	assert.Equal(t, true, created["is_active"])
	id := strconv.FormatInt(int64(created["id"].(float64)), 10)

	code, _ = h.do(t, http.MethodPost, "/api/admin/tests", admin, map[string]any{
		"title":     "Broken",
		"questions": []map[string]any{{"text": "q", "answers": []map[string]any{{"text": "a"}}}},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodPut, "/api/admin/tests/"+id, admin, map[string]any{"title": "History II", "is_active": false})
	require.Equal(t, http.StatusOK, code, body)
	updated := body["test"].(map[string]any)
	assert.Equal(t, "History II", updated["title"])
	assert.Len(t, updated["questions"], 1, "questions are kept when omitted")

	student := h.login(t, "ali", "secret1")
	code, _ = h.do(t, http.MethodGet, "/api/tests/"+id+"/questions", student, nil)
	assert.Equal(t, http.StatusNotFound, code, "inactive tests are hidden from students")

	code, body = h.do(t, http.MethodGet, "/api/admin/tests", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tests"], 2)

	code, _ = h.do(t, http.MethodDelete, "/api/admin/tests/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodGet, "/api/admin/tests/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_StudentCRUD(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin123")

	code, body := h.do(t, http.MethodPost, "/api/admin/students", admin, map[string]any{
		"first_name": "Dilnoza", "last_name": "Karimova", "group": "10-B", "username": "dilnoza", "password": "pw1",
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := strconv.FormatInt(int64(body["student"].(map[string]any)["id"].(float64)), 10)

	code, _ = h.do(t, http.MethodPost, "/api/admin/students", admin, map[string]any{
		"first_name": "X", "last_name": "Y", "username": "dilnoza", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, code)

	h.login(t, "dilnoza", "pw1")

	code, _ = h.do(t, http.MethodPut, "/api/admin/students/"+id, admin, map[string]any{
		"first_name": "Dilnoza", "last_name": "Karimova", "group": "11-A", "password": "pw2",
	})
	require.Equal(t, http.StatusOK, code)
	h.login(t, "dilnoza", "pw2")

	code, body = h.do(t, http.MethodGet, "/api/admin/students/"+id, admin, nil)
	require.Equal(t, http.StatusOK, code)
	view := body["student"].(map[string]any)
	assert.Equal(t, "11-A", view["group"])
	assert.Equal(t, "dilnoza", view["username"])

	code, _ = h.do(t, http.MethodDelete, "/api/admin/students/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodPost, "/api/student-login", "", map[string]string{"username": "dilnoza", "password": "pw2"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_ReportsAndDashboard(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin123")

	code, body := h.do(t, http.MethodGet, "/api/admin/ranking", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["ranking"])

	student := h.login(t, "ali", "secret1")
	q1, q2 := h.test.Questions[0], h.test.Questions[1]
	answers := map[string]any{
		strconv.FormatInt(q1.ID, 10): q1.Answers[0].ID,
		strconv.FormatInt(q2.ID, 10): q2.Answers[1].ID,
	}
	code, _ = h.do(t, http.MethodPost, "/api/submit-test", student, map[string]any{"test_id": h.test.ID, "answers": answers})
	require.Equal(t, http.StatusOK, code)

	code, body = h.do(t, http.MethodGet, "/api/admin/ranking", admin, nil)
	require.Equal(t, http.StatusOK, code)
	rank := body["ranking"].([]any)
	require.Len(t, rank, 1)
	assert.Equal(t, 100.0, rank[0].(map[string]any)["avg_score"])

	code, body = h.do(t, http.MethodGet, "/api/admin/results?student_id=1", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["results"], 1)

	code, body = h.do(t, http.MethodGet, "/api/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, 1.0, stats["total_students"])
	assert.Equal(t, 1.0, stats["online_students"])
	assert.Equal(t, 1.0, stats["completed_tests"])

	code, body = h.do(t, http.MethodGet, "/api/admin/activity?limit=1", admin, nil)
	require.Equal(t, http.StatusOK, code)
	acts := body["activity"].([]any)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ActivityTestComplete, acts[0].(map[string]any)["activity_type"])
}

func TestAdmin_PartialTestUpdateKeepsOmittedFields(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin123")

	code, body := h.do(t, http.MethodPost, "/api/admin/tests", admin, map[string]any{
		"title": "Quiz", "max_score": 20, "time_limit": 15, "is_active": false,
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := strconv.FormatInt(int64(body["test"].(map[string]any)["id"].(float64)), 10)

	code, body = h.do(t, http.MethodPut, "/api/admin/tests/"+id, admin, map[string]any{"title": "Quiz v2"})
	require.Equal(t, http.StatusOK, code, body)
	got := body["test"].(map[string]any)
	assert.Equal(t, "Quiz v2", got["title"])
	assert.Equal(t, 20.0, got["max_score"])
	assert.Equal(t, 15.0, got["time_limit"])
	assert.Equal(t, false, got["is_active"])

	code, body = h.do(t, http.MethodPut, "/api/admin/tests/"+id, admin, map[string]any{"is_active": true})
	require.Equal(t, http.StatusOK, code, body)
	got = body["test"].(map[string]any)
	assert.Equal(t, "Quiz v2", got["title"])
	assert.Equal(t, true, got["is_active"])

	code, _ = h.do(t, http.MethodPut, "/api/admin/tests/"+id, admin, map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPut, "/api/admin/tests/999", admin, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_PartialStudentUpdate(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin123")

	code, body := h.do(t, http.MethodPut, "/api/admin/students/1", admin, map[string]any{"group": "11-B"})
	require.Equal(t, http.StatusOK, code, body)

	st, err := h.store.GetStudent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "11-B", st.Group)
	assert.Equal(t, "Ali", st.FirstName)
	assert.Equal(t, "Valiyev", st.LastName)
	h.login(t, "ali", "secret1")

	code, _ = h.do(t, http.MethodPut, "/api/admin/students/1", admin, map[string]any{"first_name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestResultsForCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other, err := h.store.CreateStudent(ctx, models.Student{FirstName: "Bek", LastName: "Olimov"}, "bek", "h")
	require.NoError(t, err)
	err = h.store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateTestResult(ctx, &models.TestResult{StudentID: other.ID, TestID: h.test.ID, Score: 10, TotalQuestions: 2})
		return err
	})
	require.NoError(t, err)

	tok := h.login(t, "ali", "secret1")
	code, body := h.do(t, http.MethodGet, "/api/results", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["results"], "another student's result must not be visible")

	admin := h.login(t, "admin", "admin123")
	code, body = h.do(t, http.MethodGet, "/api/results", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["results"], 1)
}
