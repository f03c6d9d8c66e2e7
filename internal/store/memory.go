package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/models"
)

// MemoryStore implements Store in process. A single mutex serialises every
// call, which also makes RecordLoginFailure a plain compare-and-increment.
type MemoryStore struct {
	mu sync.Mutex

	students map[int64]models.Student
	creds    map[int64]models.Credential // by student id
	tests    map[int64]models.Test
	results  []models.TestResult
	activity []models.Activity

	seq struct {
		student, test, question, answer, result, activity int64
	}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: map[int64]models.Student{},
		creds:    map[int64]models.Credential{},
		tests:    map[int64]models.Test{},
	}
}

// ---- students & credentials ----

func (m *MemoryStore) FindCredentialByUsername(_ context.Context, username string) (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.Username == username {
			return c, nil
		}
	}
	return models.Credential{}, apperr.New(apperr.NotFound, "credential not found")
}

func (m *MemoryStore) CredentialForStudent(_ context.Context, studentID int64) (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[studentID]
	if !ok {
		return models.Credential{}, apperr.New(apperr.NotFound, "credential not found")
	}
	return c, nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id int64) (models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return models.Student{}, apperr.New(apperr.NotFound, "student not found")
	}
	return cloneStudent(s), nil
}

func (m *MemoryStore) ListStudents(_ context.Context) ([]StudentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StudentView, 0, len(m.students))
	for id, s := range m.students {
		out = append(out, StudentView{Student: cloneStudent(s), Username: m.creds[id].Username})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, s models.Student, username, passwordHash string) (models.Student, error) {
	if err := s.Validate(); err != nil {
		return models.Student{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return models.Student{}, apperr.New(apperr.Validation, "username and password are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usernameTaken(username, 0) {
		return models.Student{}, apperr.New(apperr.Conflict, "username already exists")
	}
	m.seq.student++
	s.ID = m.seq.student
	s.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.LoginAttempts = 0
	s.LockedUntil = nil
	s.Online = false
	m.students[s.ID] = s
	m.creds[s.ID] = models.Credential{StudentID: s.ID, Username: username, PasswordHash: passwordHash}
	return s, nil
}

func (m *MemoryStore) UpdateStudent(_ context.Context, s models.Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[s.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	cur.FirstName, cur.LastName, cur.Group = s.FirstName, s.LastName, s.Group
	m.students[s.ID] = cur
	return nil
}

func (m *MemoryStore) UpdateCredential(_ context.Context, studentID int64, username, passwordHash string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return apperr.New(apperr.Validation, "username is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	if m.usernameTaken(username, studentID) {
		return apperr.New(apperr.Conflict, "username already exists")
	}
	c, ok := m.creds[studentID]
	if !ok && passwordHash == "" {
		return apperr.New(apperr.Validation, "password is required for a new login")
	}
	c.StudentID = studentID
	c.Username = username
	if passwordHash != "" {
		c.PasswordHash = passwordHash
	}
	m.creds[studentID] = c
	return nil
}

func (m *MemoryStore) DeleteStudent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	delete(m.students, id)
	delete(m.creds, id)
	m.results = filter(m.results, func(r models.TestResult) bool { return r.StudentID != id })
	m.activity = filter(m.activity, func(a models.Activity) bool { return a.StudentID != id })
	return nil
}

func (m *MemoryStore) RecordLoginSuccess(_ context.Context, studentID int64, a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	s.LoginAttempts = 0
	s.LockedUntil = nil
	s.Online = true
	m.students[studentID] = s
	a.StudentID = studentID
	m.appendActivity(a)
	return nil
}

func (m *MemoryStore) RecordLoginFailure(_ context.Context, studentID int64, now time.Time, threshold int, lockFor time.Duration) (LoginFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return LoginFailure{}, apperr.New(apperr.NotFound, "student not found")
	}
	if s.LockedUntil != nil && s.LockedUntil.After(now) {
		return LoginFailure{Attempts: s.LoginAttempts, LockedUntil: timePtr(*s.LockedUntil), AlreadyLocked: true}, nil
	}
	s.LoginAttempts++
	if s.LoginAttempts >= threshold {
		s.LockedUntil = timePtr(now.Add(lockFor))
	}
	m.students[studentID] = s
	out := LoginFailure{Attempts: s.LoginAttempts}
	if s.LockedUntil != nil {
		out.LockedUntil = timePtr(*s.LockedUntil)
	}
	return out, nil
}

func (m *MemoryStore) SetOnline(_ context.Context, studentID int64, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setOnline(studentID, online)
}

// ---- catalog ----

func (m *MemoryStore) CreateTest(_ context.Context, t models.Test) (models.Test, error) {
	if err := t.Validate(); err != nil {
		return models.Test{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t = cloneTest(t)
	m.seq.test++
	t.ID = m.seq.test
	t.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	t.Questions = m.assignQuestionIDs(t.ID, t.Questions)
	m.tests[t.ID] = cloneTest(t)
	return cloneTest(t), nil
}

func (m *MemoryStore) GetTest(_ context.Context, id int64, activeOnly bool) (models.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok || (activeOnly && !t.Active) {
		return models.Test{}, apperr.New(apperr.NotFound, "test not found")
	}
	t = cloneTest(t)
	if t.Questions == nil {
		t.Questions = []models.Question{}
	}
	return t, nil
}

func (m *MemoryStore) ListTests(_ context.Context, activeOnly bool) ([]TestSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TestSummary, 0, len(m.tests))
	for _, t := range m.tests {
		if activeOnly && !t.Active {
			continue
		}
		n := len(t.Questions)
		t.Questions = nil
		out = append(out, TestSummary{Test: t, QuestionCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateTest(_ context.Context, t models.Test) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tests[t.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "test not found")
	}
	cur.Title, cur.Description = t.Title, t.Description
	cur.TimeLimit, cur.MaxScore, cur.Active = t.TimeLimit, t.MaxScore, t.Active
	if t.Questions != nil {
		cur.Questions = m.assignQuestionIDs(t.ID, cloneTest(t).Questions)
	}
	m.tests[t.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteTest(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[id]; !ok {
		return apperr.New(apperr.NotFound, "test not found")
	}
	delete(m.tests, id)
	m.results = filter(m.results, func(r models.TestResult) bool { return r.TestID != id })
	return nil
}

// ---- results & activity ----

// memTx writes straight into the store while InTx holds the lock and keeps
// an undo log for rollback.
type memTx struct {
	m    *MemoryStore
	undo []func()
}

func (t *memTx) CreateTestResult(_ context.Context, r *models.TestResult) (int64, error) {
	if _, ok := t.m.students[r.StudentID]; !ok {
		return 0, apperr.New(apperr.NotFound, "student not found")
	}
	if _, ok := t.m.tests[r.TestID]; !ok {
		return 0, apperr.New(apperr.NotFound, "test not found")
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	t.m.seq.result++
	r.ID = t.m.seq.result
	stored := *r
	stored.AnswersData = cloneAnswers(r.AnswersData)
	n := len(t.m.results)
	t.m.results = append(t.m.results, stored)
	t.undo = append(t.undo, func() { t.m.results = t.m.results[:n] })
	return r.ID, nil
}

func (t *memTx) AppendActivity(_ context.Context, a models.Activity) (int64, error) {
	if _, ok := t.m.students[a.StudentID]; !ok {
		return 0, apperr.New(apperr.NotFound, "student not found")
	}
	n := len(t.m.activity)
	id := t.m.appendActivity(a)
	t.undo = append(t.undo, func() { t.m.activity = t.m.activity[:n] })
	return id, nil
}

func (t *memTx) SetOnline(_ context.Context, studentID int64, online bool) error {
	prev, ok := t.m.students[studentID]
	if !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	if err := t.m.setOnline(studentID, online); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		s := t.m.students[studentID]
		s.Online = prev.Online
		t.m.students[studentID] = s
	})
	return nil
}

// InTx runs fn under the store lock. fn must only write through the Tx it
// is given; calling other MemoryStore methods from fn deadlocks.
func (m *MemoryStore) InTx(_ context.Context, fn func(Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (m *MemoryStore) ListResults(_ context.Context, studentID int64) ([]ResultView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResultView, 0, len(m.results))
	for _, r := range m.results {
		if studentID > 0 && r.StudentID != studentID {
			continue
		}
		s := m.students[r.StudentID]
		t := m.tests[r.TestID]
		r.AnswersData = cloneAnswers(r.AnswersData)
		out = append(out, ResultView{
			TestResult: r,
			FirstName:  s.FirstName,
			LastName:   s.LastName,
			Group:      s.Group,
			TestTitle:  t.Title,
			MaxScore:   t.MaxScore,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Ranking(_ context.Context) ([]RankingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type agg struct {
		sum float64
		n   int
	}
	by := map[int64]*agg{}
	for _, r := range m.results {
		a := by[r.StudentID]
		if a == nil {
			a = &agg{}
			by[r.StudentID] = a
		}
		a.sum += r.Score
		a.n++
	}
	out := make([]RankingEntry, 0, len(by))
	for id, a := range by {
		s := m.students[id]
		out = append(out, RankingEntry{
			StudentID:  id,
			FirstName:  s.FirstName,
			LastName:   s.LastName,
			Group:      s.Group,
			AvgScore:   a.sum / float64(a.n),
			TestsTaken: a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgScore != out[j].AvgScore {
			return out[i].AvgScore > out[j].AvgScore
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (m *MemoryStore) AppendActivity(_ context.Context, a models.Activity) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[a.StudentID]; !ok {
		return 0, apperr.New(apperr.NotFound, "student not found")
	}
	return m.appendActivity(a), nil
}

func (m *MemoryStore) ListActivity(_ context.Context, limit int) ([]ActivityView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := make([]ActivityView, 0, limit)
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.activity[i]
		s := m.students[a.StudentID]
		out = append(out, ActivityView{Activity: a, FirstName: s.FirstName, LastName: s.LastName})
	}
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context) (Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Dashboard{
		Students:         len(m.students),
		Tests:            len(m.tests),
		CompletedResults: len(m.results),
	}
	for _, s := range m.students {
		if s.Online {
			d.OnlineStudents++
		}
	}
	for _, t := range m.tests {
		if t.Active {
			d.ActiveTests++
		}
	}
	return d, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// ---- helpers (callers hold m.mu) ----

func (m *MemoryStore) usernameTaken(username string, except int64) bool {
	for id, c := range m.creds {
		if id != except && c.Username == username {
			return true
		}
	}
	return false
}

func (m *MemoryStore) setOnline(studentID int64, online bool) error {
	s, ok := m.students[studentID]
	if !ok {
		return apperr.New(apperr.NotFound, "student not found")
	}
	s.Online = online
	m.students[studentID] = s
	return nil
}

func (m *MemoryStore) appendActivity(a models.Activity) int64 {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.seq.activity++
	a.ID = m.seq.activity
	m.activity = append(m.activity, a)
	return a.ID
}

func (m *MemoryStore) assignQuestionIDs(testID int64, qs []models.Question) []models.Question {
	for i := range qs {
		m.seq.question++
		qs[i].ID = m.seq.question
		qs[i].TestID = testID
		if qs[i].Order == 0 {
			qs[i].Order = i + 1
		}
		for j := range qs[i].Answers {
			m.seq.answer++
			qs[i].Answers[j].ID = m.seq.answer
			qs[i].Answers[j].QuestionID = qs[i].ID
		}
	}
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Order != qs[j].Order {
			return qs[i].Order < qs[j].Order
		}
		return qs[i].ID < qs[j].ID
	})
	return qs
}

func cloneTest(t models.Test) models.Test {
	if t.Questions == nil {
		return t
	}
	qs := make([]models.Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Answers = append([]models.Answer(nil), q.Answers...)
		qs[i] = q
	}
	t.Questions = qs
	return t
}

func cloneStudent(s models.Student) models.Student {
	if s.LockedUntil != nil {
		s.LockedUntil = timePtr(*s.LockedUntil)
	}
	return s
}

func cloneAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
