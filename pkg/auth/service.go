package auth

import (
	"context"
	"strings"
	"time"

	"github.com/cosmoesg/cosmo/pkg/backend"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// TokenExpiry is how long session tokens are valid.
const TokenExpiry = 7 * 24 * time.Hour

// Claims are carried by session tokens. The subject is the backend user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is what a successful login yields.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and validates session tokens. Credentials are checked by the
// backend; this service only turns a successful backend login into a
// session.
type Service struct {
	jwtSecret []byte
	backend   *backend.Client
	now       func() time.Time
}

func NewService(jwtSecret string, backendClient *backend.Client) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		backend:   backendClient,
		now:       time.Now,
	}
}

// IssueToken signs a session token for the user.
func (s *Service) IssueToken(userID, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(TokenExpiry)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, errors.WithStack(err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks the signature and expiry of a session token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

type backendLogin struct {
	AccessToken string `json:"accessToken"`
	User        struct {
		ID    json.RawMessage `json:"id"`
		Email string          `json:"email"`
	} `json:"user"`
}

// Login checks the credentials against the backend and issues a session for
// the user it returns.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp backendLogin
	err := s.backend.Post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == 400 || apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
				return nil, errcodes.Unauthorized("Invalid email or password.")
			}
			return nil, errcodes.UpstreamError("Backend")
		}
		return nil, errors.WithStack(err)
	}

	userID := strings.Trim(string(resp.User.ID), `"`)
	if resp.AccessToken == "" || userID == "" || userID == "null" {
		return nil, errcodes.UpstreamError("Backend")
	}
	if resp.User.Email != "" {
		email = resp.User.Email
	}

	token, expiresAt, err := s.IssueToken(userID, email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: userID, Email: email, ExpiresAt: expiresAt}, nil
}
