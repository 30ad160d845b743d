// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides Bearer-token authentication. Tokens are HMAC-signed JWTs
// whose subject identifies the user; an optional "wallet" claim carries the
// user's default payout address. The middleware only establishes identity:
// resource-level scoping stays in the repo layer, which filters every query
// by user id.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ctxKeyUserID is the Gin context key the authenticated user id is
	// stored under. Handlers read it via their userID() helper.
	ctxKeyUserID = "userID"
	// ctxKeyWallet is the Gin context key for the token's wallet claim.
	ctxKeyWallet = "wallet"
)

// AuthOptions configures the Auth middleware.
//
// Secret is the HMAC key JWTs are verified against. When Secret is empty the
// middleware runs in permissive mode: requests pass through unauthenticated
// and identity falls back to the X-User-ID header (development and tests).
type AuthOptions struct {
	Secret string
}

// Auth returns a Gin middleware that authenticates Bearer JWTs.
//
// Behavior:
//   - Permissive mode (empty secret): the request proceeds untouched.
//   - With a secret, a missing or malformed Authorization header, an invalid
//     signature, an expired token, or an empty subject all yield 401 with the
//     standard error envelope.
//   - On success the subject is stored under "userID" and the optional
//     "wallet" claim under "wallet" for downstream handlers.
//
// Only HMAC signing methods are accepted; an RS256 token presented against
// an HMAC key is rejected rather than falling through.
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Secret == "" {
			c.Next()
			return
		}

		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(opts.Secret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "invalid or expired token")
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			unauthorized(c, "token has no subject")
			return
		}
		c.Set(ctxKeyUserID, sub)
		if w, ok := claims["wallet"].(string); ok && w != "" {
			c.Set(ctxKeyWallet, w)
		}
		c.Next()
	}
}

// WalletFrom returns the wallet claim of the authenticated token, if any.
func WalletFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyWallet); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
