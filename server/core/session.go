package core

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

const tokenIssuer = "ticksync-server"

var ErrInvalidToken = eris.New("invalid session token")

// SessionClaims identify the entity a KCP client may resume.
type SessionClaims struct {
	EntityID    uint64 `json:"entity_id"`
	ClientToken string `json:"client_token"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies resume tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate issues a token for entityID owned by clientToken.
func (s *SessionIssuer) Generate(entityID uint64, clientToken string) (string, error) {
	now := s.now()
	claims := SessionClaims{
		EntityID:    entityID,
		ClientToken: clientToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "entity-" + strconv.FormatUint(entityID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", eris.Wrap(err, "sign session token")
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (s *SessionIssuer) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, eris.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
