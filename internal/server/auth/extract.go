package auth

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/loadgate/internal/common"
)

// Verifier is the part of TokenService request handling needs.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// ClaimsFromHeaders looks for a token in "Authorization: Bearer" first and
// then in X-Auth-Token. The first header yielding a valid token wins, so an
// invalid bearer token does not hide a valid plain one. With no candidate
// at all the error is common.ErrUnauthenticated; otherwise it is the
// verification error of the last candidate.
func ClaimsFromHeaders(h http.Header, v Verifier) (*Claims, error) {
	var candidates []string

	if authz := h.Get(common.AuthorizationHeaderName); authz != "" {
		if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				candidates = append(candidates, token)
			}
		}
	}
	if token := strings.TrimSpace(h.Get(common.AuthTokenHeaderName)); token != "" {
		candidates = append(candidates, token)
	}

	if len(candidates) == 0 {
		return nil, common.ErrUnauthenticated
	}

	var lastErr error
	for _, token := range candidates {
		claims, err := v.Verify(token)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
