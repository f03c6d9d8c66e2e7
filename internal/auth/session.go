package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/rbac"
)

const issuer = "testportal"

// AuthService signs and verifies session tokens (HS256).
type AuthService struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims carry the role; the subject is the student id for students and the
// username for the superuser.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthService) TTL() time.Duration { return a.ttl }

func (a *AuthService) IssueJWT(sub, role string) (string, error) {
	now := a.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

// IssueFor mints a token for a successful login outcome.
func (a *AuthService) IssueFor(o Outcome) (string, error) {
	if o.Role == models.RoleStudent {
		return a.IssueJWT(strconv.FormatInt(o.StudentID, 10), o.Role)
	}
	return a.IssueJWT(o.Subject, o.Role)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Role == "" || c.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// Session is the authenticated caller of a request.
type Session struct {
	Role    string
	Subject string
}

func (s Session) IsAdmin() bool { return s.Role == models.RoleAdmin }

// StudentID returns the student id for student sessions.
func (s Session) StudentID() (int64, bool) {
	if s.Role != models.RoleStudent {
		return 0, false
	}
	id, err := strconv.ParseInt(s.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func SessionFromContext(ctx context.Context) Session {
	return Session{Role: rbac.RoleFromContext(ctx), Subject: rbac.SubjectFromContext(ctx)}
}
