package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mind-engage/testportal/internal/auth"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

// POST /api/student-login  { "username": "...", "password": "..." }
func LoginHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		out, err := d.Policy.AttemptLogin(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		tok, err := d.Auth.IssueFor(out)
		if err != nil {
			writeError(w, err)
			return
		}

		body := envelope{
			"token":      tok,
			"expires_in": int(d.Auth.TTL() / time.Second),
			"is_admin":   out.IsAdmin(),
			"name":       out.DisplayName,
		}
		if out.IsAdmin() {
			body["message"] = "Signed in as administrator."
		} else {
			body["student_id"] = out.StudentID
			body["message"] = fmt.Sprintf("Welcome, %s!", out.DisplayName)
			d.publish(models.Activity{
				StudentID: out.StudentID,
				Type:      models.ActivityLogin,
				Details:   "logged in",
				CreatedAt: time.Now().UTC(),
			})
		}
		writeOK(w, http.StatusOK, body)
	}
}

// POST /api/logout marks a student offline. Tokens are stateless, so the
// client simply drops its token.
func LogoutHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		sid, ok := sess.StudentID()
		if !ok {
			writeOK(w, http.StatusOK, envelope{"message": "Signed out."})
			return
		}
		act := models.Activity{
			StudentID: sid,
			Type:      models.ActivityLogout,
			Details:   "logged out",
			CreatedAt: time.Now().UTC(),
		}
		err := d.Store.InTx(r.Context(), func(tx store.Tx) error {
			if err := tx.SetOnline(r.Context(), sid, false); err != nil {
				return err
			}
			_, err := tx.AppendActivity(r.Context(), act)
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		d.publish(act)
		writeOK(w, http.StatusOK, envelope{"message": "Signed out."})
	}
}
