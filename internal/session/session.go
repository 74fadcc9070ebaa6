// Package session issues and validates the signed session token that carries
// a caller's identity, role and anti-forgery value.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docportal/internal/model"
)

const (
	csrfBytes     = 32
	defaultMaxAge = 12 * time.Hour
)

// ErrInvalidToken is returned for any token that is not fully trusted:
// bad signature, wrong algorithm, expired, not yet valid, or malformed claims.
var ErrInvalidToken = errors.New("invalid session token")

// ErrMaxAge is returned by Refresh once a session has lived for MaxAge since
// the login that started it.
var ErrMaxAge = fmt.Errorf("%w: maximum session age reached", ErrInvalidToken)

// Claims is the JWT payload of a session.
type Claims struct {
	Role string `json:"role"`
	CSRF string `json:"csrf"`
	// AuthTime is when the credentials were checked. Refreshes keep it.
	AuthTime *jwt.NumericDate `json:"auth_time"`
	jwt.RegisteredClaims
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID    int64
	Role      model.Role
	CSRF      string
	AuthTime  time.Time
	ExpiresAt time.Time
}

// Token is an issued session.
type Token struct {
	Value     string
	CSRF      string
	ExpiresAt time.Time
}

// Config configures an Issuer.
type Config struct {
	Secret        []byte
	Issuer        string
	TTL           time.Duration
	RefreshWindow time.Duration
	// MaxAge bounds a session from login, however often it is refreshed.
	// Zero means 12h.
	MaxAge time.Duration
}

// Issuer signs and verifies session tokens. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	cfg    Config
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer builds an Issuer. The secret must not be empty.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.MaxAge < cfg.TTL {
		return nil, errors.New("session max age must not be shorter than the ttl")
	}
	i := &Issuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	i.parser = jwt.NewParser(parserOpts...)
	return i, nil
}

// TTL is the lifetime of freshly issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.cfg.TTL
}

// Issue creates a token for u with a fresh anti-forgery value.
func (i *Issuer) Issue(u *model.User) (Token, error) {
	if u == nil || u.ID <= 0 || !u.Role.Valid() {
		return Token{}, errors.New("cannot issue session for invalid user")
	}
	csrf, err := newCSRF()
	if err != nil {
		return Token{}, fmt.Errorf("generate csrf: %w", err)
	}
	return i.sign(u.ID, u.Role, csrf, i.now())
}

// Refresh re-issues the session with a new expiry and the role in id, which
// the caller is expected to have reloaded. The anti-forgery value and the
// login time are kept, so a session never outlives MaxAge.
func (i *Issuer) Refresh(id Identity) (Token, error) {
	if id.UserID <= 0 || !id.Role.Valid() || id.CSRF == "" || id.AuthTime.IsZero() {
		return Token{}, ErrInvalidToken
	}
	if !i.now().Before(i.deadline(id.AuthTime)) {
		return Token{}, ErrMaxAge
	}
	return i.sign(id.UserID, id.Role, id.CSRF, id.AuthTime)
}

// NeedsRefresh reports whether id is close enough to expiry to be re-issued
// and a re-issue would actually extend it.
func (i *Issuer) NeedsRefresh(id Identity) bool {
	if i.cfg.RefreshWindow <= 0 {
		return false
	}
	if !id.ExpiresAt.Before(i.deadline(id.AuthTime)) {
		return false
	}
	return id.ExpiresAt.Sub(i.now()) < i.cfg.RefreshWindow
}

func (i *Issuer) deadline(authTime time.Time) time.Time {
	return authTime.UTC().Truncate(time.Second).Add(i.cfg.MaxAge)
}

// Resolve verifies value and returns the identity it carries.
func (i *Issuer) Resolve(value string) (Identity, error) {
	if value == "" {
		return Identity{}, ErrInvalidToken
	}
	var claims Claims
	token, err := i.parser.ParseWithClaims(value, &claims, func(*jwt.Token) (interface{}, error) {
		return i.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrInvalidToken
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return Identity{}, ErrInvalidToken
	}
	if claims.CSRF == "" || claims.ExpiresAt == nil || claims.AuthTime == nil {
		return Identity{}, ErrInvalidToken
	}
	authTime := claims.AuthTime.Time.UTC()
	if authTime.After(i.now()) || !i.now().Before(i.deadline(authTime)) {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:    userID,
		Role:      role,
		CSRF:      claims.CSRF,
		AuthTime:  authTime,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// VerifyCSRF compares the presented anti-forgery value with the one embedded
// in the session, in constant time.
func VerifyCSRF(id Identity, presented string) bool {
	if id.CSRF == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(id.CSRF), []byte(presented)) == 1
}

func (i *Issuer) sign(userID int64, role model.Role, csrf string, authTime time.Time) (Token, error) {
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.cfg.TTL)
	if deadline := i.deadline(authTime); expiresAt.After(deadline) {
		expiresAt = deadline
	}
	claims := &Claims{
		Role:     string(role),
		CSRF:     csrf,
		AuthTime: jwt.NewNumericDate(authTime.UTC().Truncate(time.Second)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session: %w", err)
	}
	return Token{Value: signed, CSRF: csrf, ExpiresAt: expiresAt}, nil
}

func newCSRF() (string, error) {
	buf := make([]byte, csrfBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
