package auth

import (
	"fmt"
	"strings"

	"chat-gateway/domain"
	errs "chat-gateway/errors"
)

// Verifier resolves the Authorization value of a websocket handshake to
// a user id. The optional "Bearer " scheme prefix is tolerated.
type Verifier struct {
	tokens *TokenManager
}

func NewVerifier(tokens *TokenManager) *Verifier {
	return &Verifier{tokens: tokens}
}

func (v *Verifier) ResolveUserID(credential string) (domain.UserID, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if trimmed == "" {
		return "", errs.ErrMissingCredential
	}
	claims, err := v.tokens.Validate(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", errs.ErrInvalidToken
	}
	return domain.UserID(claims.UserID), nil
}
