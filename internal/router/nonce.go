package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/4uJustDev/medical-calculator-haq/internal/handlers"
	"github.com/4uJustDev/medical-calculator-haq/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const cspNonceSessionKey = "csp_nonce"

// NonceMiddleware keeps one CSP nonce per session and adds it to the gin
// context. htmx fragments are not sent a policy of their own, so their inline
// scripts must carry the nonce of the page they are swapped into.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		nonce, _ := session.Get(cspNonceSessionKey).(string)
		if nonce == "" {
			var err error
			nonce, err = utils.GenerateSecureToken(16)
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSP nonce"))
				return
			}
			// saved together with the CSRF token, see CSRFProtection
			session.Set(cspNonceSessionKey, nonce)
		}
		c.Set(handlers.CSPNonceKey, nonce)

		if c.GetHeader("HX-Request") != "true" {
			c.Header("Content-Security-Policy", fmt.Sprintf(
				"default-src 'self'; script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'",
				nonce,
			))
		}
		c.Next()
	}
}
