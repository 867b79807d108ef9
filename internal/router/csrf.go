package router

import (
	"errors"
	"net/http"

	"github.com/4uJustDev/medical-calculator-haq/internal/handlers"
	"github.com/4uJustDev/medical-calculator-haq/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Keys for the token in the session, the form and the request headers.
const (
	csrfTokenSessionKey = "csrf_token"
	csrfTokenFormKey    = "_csrf"
	csrfTokenHeaderKey  = "X-CSRF-Token"
)

// CSRFProtection issues a per-session token and checks it on every unsafe
// request. htmx sends it through the hx-headers set on <body>.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, _ := session.Get(csrfTokenSessionKey).(string)
		if token == "" {
			newToken, err := utils.GenerateSecureToken(32)
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSRF token"))
				return
			}
			token = newToken
			session.Set(csrfTokenSessionKey, token)
		}
		// writes only when the session changed, the CSP nonce included
		if err := session.Save(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to save session"))
			return
		}

		c.Set(handlers.CSRFTokenKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			submitted := c.GetHeader(csrfTokenHeaderKey)
			if submitted == "" {
				submitted = c.PostForm(csrfTokenFormKey)
			}
			if submitted == "" || submitted != token {
				if c.GetHeader("HX-Request") == "true" {
					c.Header("HX-Refresh", "true")
				}
				c.AbortWithError(http.StatusForbidden, errors.New("invalid CSRF token"))
				return
			}
		}

		c.Next()
	}
}
