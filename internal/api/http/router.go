package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/testportal/internal/attempt"
	"github.com/mind-engage/testportal/internal/auth"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/monitor"
	"github.com/mind-engage/testportal/internal/rbac"
	"github.com/mind-engage/testportal/internal/store"
)

type Deps struct {
	Store  store.Store
	Auth   *auth.AuthService
	Policy *auth.LoginPolicy
	Submit *attempt.Service
	Hub    *monitor.Hub // nil disables the admin feed

	// PasswordCost is the bcrypt cost for student passwords set by admins.
	PasswordCost int
}

func (d Deps) publish(a models.Activity) {
	if d.Hub != nil {
		d.Hub.Publish(a)
	}
}

func (d Deps) hashPassword(pw string) (string, error) {
	cost := d.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	return string(h), err
}

// Mount registers every portal route on r. Global middleware (logging,
// CORS, timeouts) is the caller's business.
func Mount(r chi.Router, d Deps) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.Store))

	r.Post("/api/student-login", LoginHandler(d))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require("session:logout")).
			Post("/api/logout", LogoutHandler(d))

		// Student flow
		pr.With(rbac.Require("test:view")).
			Get("/api/tests", ListActiveTestsHandler(d.Store))
		pr.With(rbac.Require("test:view")).
			Get("/api/tests/{testID}/questions", TestQuestionsHandler(d.Store))
		pr.With(rbac.Require("test:take")).
			Post("/api/submit-test", SubmitTestHandler(d.Submit))
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/api/results", ResultsForCallerHandler(d.Store))

		// Admin
		pr.Route("/api/admin", func(ar chi.Router) {
			ar.With(rbac.Require("dashboard:view")).Get("/dashboard", DashboardHandler(d.Store))

			ar.Route("/tests", func(tr chi.Router) {
				tr.Use(rbac.Require("test:manage"))
				tr.Get("/", ListAllTestsHandler(d.Store))
				tr.Post("/", CreateTestHandler(d.Store))
				tr.Get("/{testID}", GetTestHandler(d.Store))
				tr.Put("/{testID}", UpdateTestHandler(d.Store))
				tr.Delete("/{testID}", DeleteTestHandler(d.Store))
			})

			ar.Route("/students", func(sr chi.Router) {
				sr.Use(rbac.Require("student:manage"))
				sr.Get("/", ListStudentsHandler(d.Store))
				sr.Post("/", CreateStudentHandler(d))
				sr.Get("/{studentID}", GetStudentHandler(d.Store))
				sr.Put("/{studentID}", UpdateStudentHandler(d))
				sr.Delete("/{studentID}", DeleteStudentHandler(d.Store))
			})

			ar.With(rbac.Require("result:view-all")).Get("/results", ResultsHandler(d.Store))
			ar.With(rbac.Require("result:view-all")).Get("/ranking", RankingHandler(d.Store))
			ar.With(rbac.Require("activity:view")).Get("/activity", ActivityHandler(d.Store))

			if d.Hub != nil {
				ar.With(rbac.Require("monitor:view")).Get("/monitor", monitor.Handler(d.Hub))
			}
		})
	})
}

// Routes returns a router with only the portal routes mounted.
func Routes(d Deps) http.Handler {
	r := chi.NewRouter()
	Mount(r, d)
	return r
}

func ReadyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, envelope{"success": false, "error": "database unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
