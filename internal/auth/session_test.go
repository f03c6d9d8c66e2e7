package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/testportal/internal/models"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("k", time.Hour)
	tok, err := a.IssueFor(Outcome{Role: models.RoleStudent, StudentID: 7})
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "7", c.Subject)
	assert.Equal(t, models.RoleStudent, c.Role)
	assert.NotEmpty(t, c.ID)

	_, err = NewAuthService("other", time.Hour).Parse(tok)
	assert.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Parse(tok)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("k", time.Hour)
	var got Session
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFromContext(r.Context())
	}))

	tok, err := a.IssueFor(Outcome{Role: models.RoleStudent, StudentID: 12})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	id, ok := got.StudentID()
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	admin, err := a.IssueFor(Outcome{Role: models.RoleAdmin, Subject: "admin"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/?token="+admin, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "query token outside a websocket upgrade")

	req = httptest.NewRequest(http.MethodGet, "/?token="+admin, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.IsAdmin())
	_, ok = got.StudentID()
	assert.False(t, ok)

	for _, hdr := range []string{"", "Bearer garbage", "Basic abc"} {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, hdr)
	}
}
