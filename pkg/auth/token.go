package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

// Claims is the body of an admin access token. The jti names the console
// session, which can be revoked before the token expires.
type Claims struct {
	UserID      uuid.UUID          `json:"user_id"`
	Permissions []enums.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// Signer verifies HS256 admin tokens against the shared console secret.
// Issue exists for tooling and tests; the console mints production tokens.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(cfg config.JWTConfig) *Signer {
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		ttl:    cfg.AccessTTL(),
		now:    time.Now,
	}
}

func (s *Signer) configured() error {
	switch {
	case len(s.key) == 0:
		return errors.New("jwt secret is required")
	case s.issuer == "":
		return errors.New("jwt issuer is required")
	}
	return nil
}

// Issue signs a token for userID bound to sessionID. A blank sessionID gets
// a fresh one.
func (s *Signer) Issue(userID uuid.UUID, sessionID string, perms ...enums.Permission) (string, error) {
	if err := s.configured(); err != nil {
		return "", err
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	for _, p := range perms {
		if !p.IsValid() {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid permission %q", p)
		}
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := s.now()
	claims := Claims{
		UserID:      userID,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, issuer and expiry. Every failure is an
// unauthorized error.
func (s *Signer) Verify(raw string) (*Claims, error) {
	if err := s.configured(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "token verification unavailable")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.key, nil }); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	switch {
	case claims.UserID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no user id")
	case strings.TrimSpace(claims.ID) == "":
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no session id")
	}
	return claims, nil
}
