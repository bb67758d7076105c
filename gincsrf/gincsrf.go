// Package gincsrf adapts the net/http CSRF middleware to Gin.
package gincsrf

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JeanGrijp/csrfguard/csrf"
)

// ContextKey is the gin context key holding the token for templates.
const ContextKey = "csrf_token"

// Middleware runs p.Protect in front of the remaining gin handlers.
// Rejected requests are aborted so later handlers never run.
func Middleware(p *csrf.Protector) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		h := p.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			// keep gin context in sync with possibly modified *http.Request
			c.Request = r
			if tok, ok := csrf.TokenFromContext(r.Context()); ok {
				c.Set(ContextKey, tok)
			}
			c.Next()
		}))
		h.ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// Token returns the CSRF token for the current request.
func Token(c *gin.Context) (string, bool) {
	return csrf.TokenFromContext(c.Request.Context())
}

// DeleteToken revokes the current token; see csrf.Handler.DeleteToken.
func DeleteToken(c *gin.Context) error {
	h, ok := csrf.HandlerFromContext(c.Request.Context())
	if !ok {
		return nil
	}
	return h.DeleteToken(c.Writer, c.Request)
}
