package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/testportal/internal/apperr"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/store"
)

const (
	MaxFailedAttempts = 3
	LockoutDuration   = 5 * time.Minute
)

// CredentialStore is the part of the store the login policy needs.
type CredentialStore interface {
	FindCredentialByUsername(ctx context.Context, username string) (models.Credential, error)
	GetStudent(ctx context.Context, id int64) (models.Student, error)
	RecordLoginSuccess(ctx context.Context, studentID int64, a models.Activity) error
	RecordLoginFailure(ctx context.Context, studentID int64, now time.Time, threshold int, lockFor time.Duration) (store.LoginFailure, error)
}

// Outcome is a successful login. Subject is set for the superuser,
// StudentID for students.
type Outcome struct {
	Role        string
	StudentID   int64
	Subject     string
	DisplayName string
}

func (o Outcome) IsAdmin() bool { return o.Role == models.RoleAdmin }

// LoginPolicy checks credentials and enforces the lockout rule: three
// consecutive failures lock the account for five minutes.
type LoginPolicy struct {
	Store         CredentialStore
	AdminUser     string
	AdminPassHash string
	Now           func() time.Time
}

func NewLoginPolicy(s CredentialStore, adminUser, adminPassHash string) *LoginPolicy {
	return &LoginPolicy{Store: s, AdminUser: adminUser, AdminPassHash: adminPassHash, Now: time.Now}
}

func (p *LoginPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *LoginPolicy) AttemptLogin(ctx context.Context, username, password string) (Outcome, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return Outcome{}, apperr.New(apperr.Validation, "username and password are required")
	}

	if p.isSuperuser(username, password) {
		return Outcome{Role: models.RoleAdmin, Subject: username, DisplayName: "Administrator"}, nil
	}

	cred, err := p.Store.FindCredentialByUsername(ctx, username)
	if err != nil {
		return Outcome{}, err
	}
	st, err := p.Store.GetStudent(ctx, cred.StudentID)
	if err != nil {
		return Outcome{}, err
	}

	now := p.now()
	if st.LockedUntil != nil && st.LockedUntil.After(now) {
		return Outcome{}, apperr.LockedFor(remainingMinutes(*st.LockedUntil, now))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Outcome{}, apperr.Wrap(apperr.StorageFailure, "stored password hash is unusable", err)
		}
		f, ferr := p.Store.RecordLoginFailure(ctx, st.ID, now, MaxFailedAttempts, LockoutDuration)
		if ferr != nil {
			return Outcome{}, ferr
		}
		if f.AlreadyLocked && f.LockedUntil != nil {
			return Outcome{}, apperr.LockedFor(remainingMinutes(*f.LockedUntil, now))
		}
		return Outcome{}, apperr.New(apperr.InvalidCredential, "wrong password")
	}

	err = p.Store.RecordLoginSuccess(ctx, st.ID, models.Activity{
		StudentID: st.ID,
		Type:      models.ActivityLogin,
		Details:   fmt.Sprintf("logged in as %s", cred.Username),
		CreatedAt: now,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Role: models.RoleStudent, StudentID: st.ID, DisplayName: st.FullName()}, nil
}

func (p *LoginPolicy) isSuperuser(username, password string) bool {
	if p.AdminUser == "" || p.AdminPassHash == "" || username != p.AdminUser {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.AdminPassHash), []byte(password)) == nil
}

// remainingMinutes rounds up so a lock with 30s left reports 1 minute.
func remainingMinutes(until, now time.Time) int {
	m := int(math.Ceil(until.Sub(now).Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
