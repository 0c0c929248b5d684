package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/martincass/UCAMtracker/internal/models"
)

// Token purposes. A token is only accepted for the purpose it was issued for.
const (
	PurposeSession      = "session"
	PurposeRecovery     = "recovery"
	PurposeConfirmation = "confirm"
)

const confirmationTTL = 72 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are carried by every token the service issues. Version holds the
// user's session version for session tokens and the password version for
// recovery tokens, so bumping either revokes outstanding tokens.
type Claims struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret      []byte
	sessionTTL  time.Duration
	recoveryTTL time.Duration
	now         func() time.Time
}

func NewTokenIssuer(secret string, sessionTTL, recoveryTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		recoveryTTL: recoveryTTL,
		now:         time.Now,
	}
}

// IssueSession signs a session token for the user.
func (ti *TokenIssuer) IssueSession(user *models.User) (string, time.Time, error) {
	return ti.issue(user, PurposeSession, user.SessionVersion, ti.sessionTTL)
}

// IssueRecovery signs a single-use password recovery token.
func (ti *TokenIssuer) IssueRecovery(user *models.User) (string, time.Time, error) {
	return ti.issue(user, PurposeRecovery, user.PasswordVersion, ti.recoveryTTL)
}

// IssueConfirmation signs an email confirmation token.
func (ti *TokenIssuer) IssueConfirmation(user *models.User) (string, time.Time, error) {
	return ti.issue(user, PurposeConfirmation, 0, confirmationTTL)
}

func (ti *TokenIssuer) ParseSession(token string) (*Claims, error) {
	return ti.parse(token, PurposeSession)
}

func (ti *TokenIssuer) ParseRecovery(token string) (*Claims, error) {
	return ti.parse(token, PurposeRecovery)
}

func (ti *TokenIssuer) ParseConfirmation(token string) (*Claims, error) {
	return ti.parse(token, PurposeConfirmation)
}

func (ti *TokenIssuer) issue(user *models.User, purpose string, version int, ttl time.Duration) (string, time.Time, error) {
	now := ti.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email:   user.Email,
		Role:    string(user.Role),
		Purpose: purpose,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (ti *TokenIssuer) parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(ti.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
