// Package session identifies the caller of the storefront API. The session is
// carried explicitly in the request context; nothing reads auth state globally.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// HeaderSessionID carries the guest session id in both directions.
const HeaderSessionID = "X-Session-ID"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUnknownRole  = errors.New("unknown role")
)

type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`
	Role   Role   `json:"role"`
}

// Owner is the key the session's cart and orders are stored under.
func (s *Session) Owner() string {
	if s.UserID != "" {
		return s.UserID
	}
	return "guest-" + s.ID
}

func (s *Session) IsGuest() bool {
	return s.Role == RoleGuest
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator turns bearer tokens or guest ids into sessions.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for userID. Used by tests and local tooling.
func (a *Authenticator) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates an HS256 token and returns the session it describes.
func (a *Authenticator) Parse(token string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	switch role {
	case "":
		role = RoleCustomer
	case RoleCustomer, RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	return &Session{ID: "user-" + claims.Subject, UserID: claims.Subject, Role: role}, nil
}

// Middleware attaches a session to every request. A bearer token must be
// valid; without one the caller is a guest identified by X-Session-ID, which
// is minted when absent and echoed back.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s *Session

		if auth := r.Header.Get("Authorization"); auth != "" {
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header must be a bearer token", "UNAUTHENTICATED")
				return
			}
			parsed, err := a.Parse(strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHENTICATED")
				return
			}
			s = parsed
		} else {
			id := r.Header.Get(HeaderSessionID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			s = &Session{ID: id, Role: RoleGuest}
			w.Header().Set(HeaderSessionID, id)
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
	})
}

// RequireRole rejects sessions whose role is not one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := FromContext(r.Context())
			if !ok || s.IsGuest() {
				writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED")
				return
			}
			for _, role := range roles {
				if s.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions", "PERMISSION_DENIED")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
