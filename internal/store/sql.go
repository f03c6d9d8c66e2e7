package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/db"
	"github.com/mind-engage/testportal/internal/models"
)

// SQLStore works on sqlite and postgres. Queries use ? placeholders and are
// rebound for the connected driver.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(dbx *sqlx.DB) *SQLStore {
	return &SQLStore{db: dbx}
}

// ---- rows ----

type studentRow struct {
	ID            int64         `db:"id"`
	FirstName     string        `db:"first_name"`
	LastName      string        `db:"last_name"`
	Group         string        `db:"group_name"`
	Online        bool          `db:"is_online"`
	LoginAttempts int           `db:"login_attempts"`
	LockedUntil   sql.NullInt64 `db:"locked_until"`
	CreatedAt     int64         `db:"created_at"`
}

func (r studentRow) model() models.Student {
	s := models.Student{
		ID:            r.ID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Group:         r.Group,
		Online:        r.Online,
		LoginAttempts: r.LoginAttempts,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
	if r.LockedUntil.Valid {
		t := fromMillis(r.LockedUntil.Int64)
		s.LockedUntil = &t
	}
	return s
}

type credentialRow struct {
	StudentID    int64  `db:"student_id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
}

func (r credentialRow) model() models.Credential {
	return models.Credential{StudentID: r.StudentID, Username: r.Username, PasswordHash: r.PasswordHash}
}

type testRow struct {
	ID          int64   `db:"id"`
	Title       string  `db:"title"`
	Description string  `db:"description"`
	TimeLimit   int     `db:"time_limit"`
	MaxScore    float64 `db:"max_score"`
	Active      bool    `db:"is_active"`
	CreatedAt   int64   `db:"created_at"`
}

func (r testRow) model() models.Test {
	return models.Test{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		TimeLimit:   r.TimeLimit,
		MaxScore:    r.MaxScore,
		Active:      r.Active,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

type questionRow struct {
	ID     int64  `db:"id"`
	TestID int64  `db:"test_id"`
	Text   string `db:"text"`
	Order  int    `db:"sort_order"`
}

type answerRow struct {
	ID         int64  `db:"id"`
	QuestionID int64  `db:"question_id"`
	Text       string `db:"text"`
	IsCorrect  bool   `db:"is_correct"`
}

type resultRow struct {
	ID             int64   `db:"id"`
	StudentID      int64   `db:"student_id"`
	TestID         int64   `db:"test_id"`
	Score          float64 `db:"score"`
	TotalQuestions int     `db:"total_questions"`
	CorrectAnswers int     `db:"correct_answers"`
	AnswersJSON    string  `db:"answers_json"`
	CompletedAt    int64   `db:"completed_at"`
	FirstName      string  `db:"first_name"`
	LastName       string  `db:"last_name"`
	Group          string  `db:"group_name"`
	TestTitle      string  `db:"test_title"`
	MaxScore       float64 `db:"max_score"`
}

type activityRow struct {
	ID        int64  `db:"id"`
	StudentID int64  `db:"student_id"`
	Type      string `db:"activity_type"`
	Details   string `db:"details"`
	CreatedAt int64  `db:"created_at"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

// ---- students & credentials ----

const studentCols = `s.id, s.first_name, s.last_name, s.group_name, s.is_online, s.login_attempts, s.locked_until, s.created_at`

func (s *SQLStore) FindCredentialByUsername(ctx context.Context, username string) (models.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT student_id, username, password_hash FROM student_logins WHERE username = ?`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credential{}, apperr.New(apperr.NotFound, "credential not found")
	}
	if err != nil {
		return models.Credential{}, wrap("find credential", err)
	}
	return row.model(), nil
}

func (s *SQLStore) CredentialForStudent(ctx context.Context, studentID int64) (models.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT student_id, username, password_hash FROM student_logins WHERE student_id = ?`), studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credential{}, apperr.New(apperr.NotFound, "credential not found")
	}
	if err != nil {
		return models.Credential{}, wrap("credential for student", err)
	}
	return row.model(), nil
}

func (s *SQLStore) GetStudent(ctx context.Context, id int64) (models.Student, error) {
	var row studentRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+studentCols+` FROM students s WHERE s.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Student{}, apperr.New(apperr.NotFound, "student not found")
	}
	if err != nil {
		return models.Student{}, wrap("get student", err)
	}
	return row.model(), nil
}

func (s *SQLStore) ListStudents(ctx context.Context) ([]StudentView, error) {
	var rows []struct {
		studentRow
		Username string `db:"username"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT `+studentCols+`, COALESCE(l.username, '') AS username
		FROM students s LEFT JOIN student_logins l ON l.student_id = s.id
		ORDER BY s.last_name, s.first_name, s.id`)
	if err != nil {
		return nil, wrap("list students", err)
	}
	out := make([]StudentView, 0, len(rows))
	for _, r := range rows {
		out = append(out, StudentView{Student: r.model(), Username: r.Username})
	}
	return out, nil
}

func (s *SQLStore) CreateStudent(ctx context.Context, st models.Student, username, passwordHash string) (models.Student, error) {
	if err := st.Validate(); err != nil {
		return models.Student{}, err
	}
	if strings.TrimSpace(username) == "" || passwordHash == "" {
		return models.Student{}, apperr.New(apperr.Validation, "username and password are required")
	}
	st.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	st.LoginAttempts = 0
	st.LockedUntil = nil
	st.Online = false

	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &st.ID, tx.Rebind(`INSERT INTO students
			(first_name, last_name, group_name, is_online, login_attempts, created_at)
			VALUES (?, ?, ?, ?, 0, ?) RETURNING id`),
			st.FirstName, st.LastName, st.Group, false, toMillis(st.CreatedAt)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO student_logins (student_id, username, password_hash) VALUES (?, ?, ?)`),
			st.ID, strings.TrimSpace(username), passwordHash)
		return err
	})
	if err != nil {
		return models.Student{}, wrap("create student", err)
	}
	return st, nil
}

func (s *SQLStore) UpdateStudent(ctx context.Context, st models.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE students SET first_name = ?, last_name = ?, group_name = ? WHERE id = ?`),
		st.FirstName, st.LastName, st.Group, st.ID)
	if err != nil {
		return wrap("update student", err)
	}
	return mustAffect(res, "student not found")
}

// UpdateCredential upserts the login of a student. An empty hash keeps the
// current password.
func (s *SQLStore) UpdateCredential(ctx context.Context, studentID int64, username, passwordHash string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return apperr.New(apperr.Validation, "username is required")
	}
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM student_logins WHERE student_id = ?`), studentID); err != nil {
			return err
		}
		var err error
		switch {
		case n > 0 && passwordHash == "":
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE student_logins SET username = ? WHERE student_id = ?`),
				username, studentID)
		case n > 0:
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE student_logins SET username = ?, password_hash = ? WHERE student_id = ?`),
				username, passwordHash, studentID)
		case passwordHash == "":
			return apperr.New(apperr.Validation, "password is required for a new login")
		default:
			var exists int
			if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM students WHERE id = ?`), studentID); err != nil {
				return err
			}
			if exists == 0 {
				return apperr.New(apperr.NotFound, "student not found")
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO student_logins (student_id, username, password_hash) VALUES (?, ?, ?)`),
				studentID, username, passwordHash)
		}
		return err
	})
	if err != nil {
		return wrap("update credential", err)
	}
	return nil
}

func (s *SQLStore) DeleteStudent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM students WHERE id = ?`), id)
	if err != nil {
		return wrap("delete student", err)
	}
	return mustAffect(res, "student not found")
}

func (s *SQLStore) RecordLoginSuccess(ctx context.Context, studentID int64, a models.Activity) error {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE students SET login_attempts = 0, locked_until = NULL, is_online = ? WHERE id = ?`),
			true, studentID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, "student not found"); err != nil {
			return err
		}
		a.StudentID = studentID
		_, err = insertActivity(ctx, tx, a)
		return err
	})
	if err != nil {
		return wrap("record login success", err)
	}
	return nil
}

// RecordLoginFailure increments the counter in a single statement. The
// WHERE clause skips accounts that are locked at now, so two concurrent
// failures cannot both read the same counter value.
func (s *SQLStore) RecordLoginFailure(ctx context.Context, studentID int64, now time.Time, threshold int, lockFor time.Duration) (LoginFailure, error) {
	var row struct {
		Attempts    int           `db:"login_attempts"`
		LockedUntil sql.NullInt64 `db:"locked_until"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`UPDATE students
		SET login_attempts = login_attempts + 1,
		    locked_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ? AND (locked_until IS NULL OR locked_until <= ?)
		RETURNING login_attempts, locked_until`),
		threshold, toMillis(now.Add(lockFor)), studentID, toMillis(now))
	if errors.Is(err, sql.ErrNoRows) {
		st, gerr := s.GetStudent(ctx, studentID)
		if gerr != nil {
			return LoginFailure{}, gerr
		}
		return LoginFailure{Attempts: st.LoginAttempts, LockedUntil: st.LockedUntil, AlreadyLocked: true}, nil
	}
	if err != nil {
		return LoginFailure{}, wrap("record login failure", err)
	}
	out := LoginFailure{Attempts: row.Attempts}
	if row.LockedUntil.Valid {
		t := fromMillis(row.LockedUntil.Int64)
		out.LockedUntil = &t
	}
	return out, nil
}

func (s *SQLStore) SetOnline(ctx context.Context, studentID int64, online bool) error {
	return setOnline(ctx, s.db, studentID, online)
}

// ---- catalog ----

const testCols = `t.id, t.title, t.description, t.time_limit, t.max_score, t.is_active, t.created_at`

func (s *SQLStore) CreateTest(ctx context.Context, t models.Test) (models.Test, error) {
	if err := t.Validate(); err != nil {
		return models.Test{}, err
	}
	t = cloneTest(t)
	t.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &t.ID, tx.Rebind(`INSERT INTO tests
			(title, description, time_limit, max_score, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			t.Title, t.Description, t.TimeLimit, t.MaxScore, t.Active, toMillis(t.CreatedAt)); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, t.ID, t.Questions)
	})
	if err != nil {
		return models.Test{}, wrap("create test", err)
	}
	return t, nil
}

func (s *SQLStore) GetTest(ctx context.Context, id int64, activeOnly bool) (models.Test, error) {
	q := `SELECT ` + testCols + ` FROM tests t WHERE t.id = ?`
	args := []any{id}
	if activeOnly {
		q += ` AND t.is_active = ?`
		args = append(args, true)
	}
	var row testRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Test{}, apperr.New(apperr.NotFound, "test not found")
	}
	if err != nil {
		return models.Test{}, wrap("get test", err)
	}
	t := row.model()

	var qrows []questionRow
	if err := s.db.SelectContext(ctx, &qrows, s.db.Rebind(`SELECT id, test_id, text, sort_order
		FROM questions WHERE test_id = ? ORDER BY sort_order, id`), id); err != nil {
		return models.Test{}, wrap("get questions", err)
	}
	var arows []answerRow
	if err := s.db.SelectContext(ctx, &arows, s.db.Rebind(`SELECT a.id, a.question_id, a.text, a.is_correct
		FROM answers a JOIN questions q ON q.id = a.question_id
		WHERE q.test_id = ? ORDER BY a.id`), id); err != nil {
		return models.Test{}, wrap("get answers", err)
	}
	byQuestion := make(map[int64][]models.Answer, len(qrows))
	for _, a := range arows {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], models.Answer{
			ID: a.ID, QuestionID: a.QuestionID, Text: a.Text, IsCorrect: a.IsCorrect,
		})
	}
	t.Questions = make([]models.Question, 0, len(qrows))
	for _, q := range qrows {
		t.Questions = append(t.Questions, models.Question{
			ID: q.ID, TestID: q.TestID, Text: q.Text, Order: q.Order, Answers: byQuestion[q.ID],
		})
	}
	return t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, activeOnly bool) ([]TestSummary, error) {
	q := `SELECT ` + testCols + `, (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id) AS question_count
		FROM tests t`
	var args []any
	if activeOnly {
		q += ` WHERE t.is_active = ?`
		args = append(args, true)
	}
	q += ` ORDER BY t.created_at DESC, t.id DESC`

	var rows []struct {
		testRow
		QuestionCount int `db:"question_count"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, wrap("list tests", err)
	}
	out := make([]TestSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, TestSummary{Test: r.model(), QuestionCount: r.QuestionCount})
	}
	return out, nil
}

// UpdateTest rewrites the test metadata. When t.Questions is non-nil the
// question set is replaced as a whole.
func (s *SQLStore) UpdateTest(ctx context.Context, t models.Test) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t = cloneTest(t)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tests
			SET title = ?, description = ?, time_limit = ?, max_score = ?, is_active = ?
			WHERE id = ?`),
			t.Title, t.Description, t.TimeLimit, t.MaxScore, t.Active, t.ID)
		if err != nil {
			return err
		}
		if err := mustAffect(res, "test not found"); err != nil {
			return err
		}
		if t.Questions == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM questions WHERE test_id = ?`), t.ID); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, t.ID, t.Questions)
	})
	if err != nil {
		return wrap("update test", err)
	}
	return nil
}

func (s *SQLStore) DeleteTest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tests WHERE id = ?`), id)
	if err != nil {
		return wrap("delete test", err)
	}
	return mustAffect(res, "test not found")
}

func insertQuestions(ctx context.Context, tx *sqlx.Tx, testID int64, qs []models.Question) error {
	for i := range qs {
		q := &qs[i]
		q.TestID = testID
		if q.Order == 0 {
			q.Order = i + 1
		}
		if err := tx.GetContext(ctx, &q.ID, tx.Rebind(`INSERT INTO questions (test_id, text, sort_order)
			VALUES (?, ?, ?) RETURNING id`), testID, q.Text, q.Order); err != nil {
			return err
		}
		for j := range q.Answers {
			a := &q.Answers[j]
			a.QuestionID = q.ID
			if err := tx.GetContext(ctx, &a.ID, tx.Rebind(`INSERT INTO answers (question_id, text, is_correct)
				VALUES (?, ?, ?) RETURNING id`), q.ID, a.Text, a.IsCorrect); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---- results & activity ----

type sqlTx struct{ tx *sqlx.Tx }

func (t sqlTx) CreateTestResult(ctx context.Context, r *models.TestResult) (int64, error) {
	answers := r.AnswersData
	if answers == nil {
		answers = map[string]string{}
	}
	buf, err := json.Marshal(answers)
	if err != nil {
		return 0, fmt.Errorf("encode answers: %w", err)
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	err = t.tx.GetContext(ctx, &r.ID, t.tx.Rebind(`INSERT INTO test_results
		(student_id, test_id, score, total_questions, correct_answers, answers_json, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		r.StudentID, r.TestID, r.Score, r.TotalQuestions, r.CorrectAnswers, string(buf), toMillis(r.CompletedAt))
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (t sqlTx) AppendActivity(ctx context.Context, a models.Activity) (int64, error) {
	return insertActivity(ctx, t.tx, a)
}

func (t sqlTx) SetOnline(ctx context.Context, studentID int64, online bool) error {
	return setOnline(ctx, t.tx, studentID, online)
}

func (s *SQLStore) InTx(ctx context.Context, fn func(Tx) error) error {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(sqlTx{tx: tx})
	})
	if err != nil {
		return wrap("transaction", err)
	}
	return nil
}

func (s *SQLStore) ListResults(ctx context.Context, studentID int64) ([]ResultView, error) {
	q := `SELECT r.id, r.student_id, r.test_id, r.score, r.total_questions, r.correct_answers,
			r.answers_json, r.completed_at,
			s.first_name, s.last_name, s.group_name, t.title AS test_title, t.max_score
		FROM test_results r
		JOIN students s ON s.id = r.student_id
		JOIN tests t ON t.id = r.test_id`
	var args []any
	if studentID > 0 {
		q += ` WHERE r.student_id = ?`
		args = append(args, studentID)
	}
	q += ` ORDER BY r.completed_at DESC, r.id DESC`

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, wrap("list results", err)
	}
	out := make([]ResultView, 0, len(rows))
	for _, r := range rows {
		answers := map[string]string{}
		if r.AnswersJSON != "" {
			if err := json.Unmarshal([]byte(r.AnswersJSON), &answers); err != nil {
				return nil, wrap("decode answers", err)
			}
		}
		out = append(out, ResultView{
			TestResult: models.TestResult{
				ID:             r.ID,
				StudentID:      r.StudentID,
				TestID:         r.TestID,
				Score:          r.Score,
				TotalQuestions: r.TotalQuestions,
				CorrectAnswers: r.CorrectAnswers,
				AnswersData:    answers,
				CompletedAt:    fromMillis(r.CompletedAt),
			},
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Group:     r.Group,
			TestTitle: r.TestTitle,
			MaxScore:  r.MaxScore,
		})
	}
	return out, nil
}

func (s *SQLStore) Ranking(ctx context.Context) ([]RankingEntry, error) {
	var rows []struct {
		StudentID  int64   `db:"student_id"`
		FirstName  string  `db:"first_name"`
		LastName   string  `db:"last_name"`
		Group      string  `db:"group_name"`
		AvgScore   float64 `db:"avg_score"`
		TestsTaken int     `db:"tests_taken"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT s.id AS student_id, s.first_name, s.last_name, s.group_name,
			AVG(r.score) AS avg_score, COUNT(r.id) AS tests_taken
		FROM students s JOIN test_results r ON r.student_id = s.id
		GROUP BY s.id, s.first_name, s.last_name, s.group_name
		ORDER BY avg_score DESC, s.id`)
	if err != nil {
		return nil, wrap("ranking", err)
	}
	out := make([]RankingEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, RankingEntry(r))
	}
	return out, nil
}

func (s *SQLStore) AppendActivity(ctx context.Context, a models.Activity) (int64, error) {
	id, err := insertActivity(ctx, s.db, a)
	if err != nil {
		return 0, wrap("append activity", err)
	}
	return id, nil
}

func (s *SQLStore) ListActivity(ctx context.Context, limit int) ([]ActivityView, error) {
	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT a.id, a.student_id, a.activity_type, a.details, a.created_at,
			s.first_name, s.last_name
		FROM student_activity a JOIN students s ON s.id = a.student_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?`), clampLimit(limit))
	if err != nil {
		return nil, wrap("list activity", err)
	}
	out := make([]ActivityView, 0, len(rows))
	for _, r := range rows {
		out = append(out, ActivityView{
			Activity: models.Activity{
				ID:        r.ID,
				StudentID: r.StudentID,
				Type:      r.Type,
				Details:   r.Details,
				CreatedAt: fromMillis(r.CreatedAt),
			},
			FirstName: r.FirstName,
			LastName:  r.LastName,
		})
	}
	return out, nil
}

func (s *SQLStore) Counts(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&d.Students, `SELECT COUNT(*) FROM students`, nil},
		{&d.OnlineStudents, `SELECT COUNT(*) FROM students WHERE is_online = ?`, []any{true}},
		{&d.Tests, `SELECT COUNT(*) FROM tests`, nil},
		{&d.ActiveTests, `SELECT COUNT(*) FROM tests WHERE is_active = ?`, []any{true}},
		{&d.CompletedResults, `SELECT COUNT(*) FROM test_results`, nil},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, s.db.Rebind(c.query), c.args...); err != nil {
			return Dashboard{}, wrap("counts", err)
		}
	}
	return d, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- helpers ----

func insertActivity(ctx context.Context, e sqlx.ExtContext, a models.Activity) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := sqlx.GetContext(ctx, e, &id, e.Rebind(`INSERT INTO student_activity
		(student_id, activity_type, details, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		a.StudentID, a.Type, a.Details, toMillis(a.CreatedAt))
	return id, err
}

func setOnline(ctx context.Context, e sqlx.ExtContext, studentID int64, online bool) error {
	res, err := e.ExecContext(ctx, e.Rebind(`UPDATE students SET is_online = ? WHERE id = ?`), online, studentID)
	if err != nil {
		return wrap("set online", err)
	}
	return mustAffect(res, "student not found")
}

func mustAffect(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, notFound)
	}
	return nil
}

// wrap classifies a driver error. Unique violations become Conflict;
// already classified errors pass through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.Conflict, "username already exists", err)
	}
	return apperr.Storage(fmt.Errorf("%s: %w", op, err))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
