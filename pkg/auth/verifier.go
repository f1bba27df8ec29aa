// Package auth verifies Cognito JWTs via JWKS and validates issuer/audience.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const defaultLeeway = 30 * time.Second

// ErrInvalidToken is the only error surfaced to callers. The underlying
// failure detail is logged server-side and never echoed back, and raw
// tokens are never logged.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the identity extracted from a validated token.
type Claims struct {
	Sub   string
	Email string
}

// Verifier validates Cognito JWT tokens against the user pool's JWKS.
// The key set is fetched lazily and refreshed in the background by the
// keyfunc provider, so repeated validations do not hit the network.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
	log      zerolog.Logger
}

// NewVerifier builds a verifier for the given issuer and client id.
// jwksURL points at the pool's .well-known/jwks.json endpoint.
func NewVerifier(issuer, audience, jwksURL string, log zerolog.Logger) (*Verifier, error) {
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience must be set")
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init JWKS keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
	)

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   parser,
		log:      log,
	}, nil
}

// Validate parses and verifies a token, returning its claims.
func (v *Verifier) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		v.log.Warn().Err(err).Msg("token validation failed")
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	// Cognito issues both id and access tokens against the same key set.
	tokenUse, _ := claims["token_use"].(string)
	if tokenUse != "id" && tokenUse != "access" {
		v.log.Warn().Str("token_use", tokenUse).Msg("rejected token with unexpected token_use")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UserInfo validates a token and extracts the subject and email. A missing
// sub claim is fatal; a missing email falls back to cognito:username.
func (v *Verifier) UserInfo(tokenString string) (Claims, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return Claims{}, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		v.log.Warn().Msg("token missing sub claim")
		return Claims{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["cognito:username"].(string)
	}

	return Claims{Sub: sub, Email: email}, nil
}
