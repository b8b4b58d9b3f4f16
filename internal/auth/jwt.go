// Package auth turns bearer tokens issued by the account service into chat identities.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload shared with the account service: user id and role.
type Claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates tokens. With several keys, the "kid" header
// picks the verification key so old tokens survive a rotation.
type JWTManager struct {
	keys      map[string]string
	activeKid string
	duration  time.Duration
}

// NewJWTManager returns a manager with a single HMAC secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{keys: map[string]string{"": secretKey}, duration: duration}
}

// NewJWTManagerFromKeys returns a manager that signs with activeKid and verifies with any key.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &JWTManager{keys: copied, activeKid: activeKid, duration: duration}
}

// GenerateToken issues a signed token for id. The chat server only verifies
// tokens; issuing is used by the admin CLI and tests.
func (m *JWTManager) GenerateToken(id models.Identity) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)
	claims := &Claims{
		ID:   id.ID,
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("no signing key for kid %q", m.activeKid)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if secret, ok := m.keys[kid]; ok {
			return []byte(secret), nil
		}
		// Tokens without kid fall back to the active key.
		if kid == "" {
			if secret, ok := m.keys[m.activeKid]; ok {
				return []byte(secret), nil
			}
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Identify verifies a token and maps its claims to an identity.
// Every failure is an apperr.ErrAuth.
func (m *JWTManager) Identify(tokenString string) (models.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return models.Identity{}, apperr.Auth("missing credential")
	}
	claims, err := m.VerifyToken(tokenString)
	if err != nil {
		return models.Identity{}, apperr.Auth("%v", err)
	}
	if claims.ID == "" {
		return models.Identity{}, apperr.Auth("token has no subject id")
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Identity{}, apperr.Auth("%v", err)
	}
	return models.Identity{ID: claims.ID, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
