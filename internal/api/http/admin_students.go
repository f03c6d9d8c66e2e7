package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

type studentInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Group     *string `json:"group"`
	Username  string  `json:"username"`
	Password  string  `json:"password,omitempty"` // plaintext, hashed before storage
}

// applyTo overwrites the name fields present in the body.
func (in studentInput) applyTo(s models.Student) models.Student {
	if in.FirstName != nil {
		s.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		s.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Group != nil {
		s.Group = strings.TrimSpace(*in.Group)
	}
	return s
}

func ListStudentsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.ListStudents(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"students": list})
	}
}

// POST /api/admin/students creates the student and its login together.
func CreateStudentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in studentInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Password) == "" {
			writeError(w, apperr.New(apperr.Validation, "username and password are required"))
			return
		}
		hash, err := d.hashPassword(strings.TrimSpace(in.Password))
		if err != nil {
			writeError(w, err)
			return
		}
		st, err := d.Store.CreateStudent(r.Context(), in.applyTo(models.Student{}), in.Username, hash)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusCreated, envelope{
			"student": store.StudentView{Student: st, Username: strings.TrimSpace(in.Username)},
			"message": "Student created.",
		})
	}
}

func GetStudentHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "studentID")
		if err != nil {
			writeError(w, err)
			return
		}
		st, err := s.GetStudent(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		view := store.StudentView{Student: st}
		if c, err := s.CredentialForStudent(r.Context(), id); err == nil {
			view.Username = c.Username
		} else if !apperr.Is(err, apperr.NotFound) {
			writeError(w, err)
			return
		}
		results, err := s.ListResults(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"student": view, "results": results})
	}
}

// PUT /api/admin/students/{studentID} changes only the fields in the body;
// an empty password keeps the current one.
func UpdateStudentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "studentID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in studentInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		cur, err := d.Store.GetStudent(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := d.Store.UpdateStudent(r.Context(), in.applyTo(cur)); err != nil {
			writeError(w, err)
			return
		}
		if in.Username != "" || in.Password != "" {
			username := strings.TrimSpace(in.Username)
			if username == "" {
				c, err := d.Store.CredentialForStudent(r.Context(), id)
				if err != nil {
					writeError(w, err)
					return
				}
				username = c.Username
			}
			var hash string
			if pw := strings.TrimSpace(in.Password); pw != "" {
				if hash, err = d.hashPassword(pw); err != nil {
					writeError(w, err)
					return
				}
			}
			if err := d.Store.UpdateCredential(r.Context(), id, username, hash); err != nil {
				writeError(w, err)
				return
			}
		}
		writeOK(w, http.StatusOK, envelope{"message": "Student updated."})
	}
}

func DeleteStudentHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "studentID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.DeleteStudent(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"message": "Student deleted."})
	}
}
