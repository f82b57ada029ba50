package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ErrMalformedToken is returned for credentials that are not three
// dot-separated segments with a decodable JSON payload and a subject.
var ErrMalformedToken = errors.New("malformed token")

// DecodeClaims reads the claims of a JWT-shaped credential locally. The
// signature is not verified; the backend does that on every request.
func DecodeClaims(token string) (*jwt.RegisteredClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %d segments", ErrMalformedToken, len(parts))
	}

	payload, err := jwt.DecodeSegment(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformedToken, err)
	}

	var claims jwt.RegisteredClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrMalformedToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return &claims, nil
}

// Subject returns the identity claim of token, or ErrMalformedToken.
func Subject(token string) (string, error) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
