package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/database"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterWithStore(t, repository.DiscardStore{})
}

func newTestRouterWithStore(t *testing.T, store repository.SubmissionStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := models.NewCatalog("HAQ-DI", "", "", []models.Category{{
		Name:      "Dressing",
		Questions: []models.Question{{ID: 1, Text: "Dress yourself?", Options: []models.Option{{Value: 0, Label: "No"}}}},
	}})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{SessionSecret: "test-secret", RateLimit: 100},
		Quiz:   config.QuizConfig{RequirePatientInfo: true},
	}
	return Setup(zap.NewNop(), cfg, catalog, store)
}

func cookiesOf(w *httptest.ResponseRecorder) []*http.Cookie {
	return w.Result().Cookies()
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","storage":"memory"}`, w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "nonce-")
}

func TestUnsafeRequestsNeedCSRFToken(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/quiz/reset", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFTokenFromPage(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m := regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`).FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)
	assert.Contains(t, w.Body.String(), `hx-headers="{&#34;X-CSRF-Token&#34;:&#34;`+m[1]+`&#34;}"`)
	assert.Len(t, cookiesOf(w), 1)

	req := httptest.NewRequest(http.MethodPost, "/quiz/start", strings.NewReader("name=Anna&age=40"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("X-CSRF-Token", m[1])
	for _, ck := range cookiesOf(w) {
		req.AddCookie(ck)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dress yourself?")
}

func TestFragmentScriptsUseThePageNonce(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	store := repository.NewGormSubmissionStore(db)
	score := 0.0
	require.NoError(t, store.Insert(context.Background(), &models.Submission{
		ID:      1709647629000,
		Date:    "05.03.2024, 14:07:09",
		Answers: models.AnswerSet{1: &score},
	}))
	r := newTestRouterWithStore(t, store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	csp := regexp.MustCompile(`'nonce-([^']+)'`).FindStringSubmatch(w.Header().Get("Content-Security-Policy"))
	require.Len(t, csp, 2)

	cookies := cookiesOf(w)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/history", nil)
		req.Header.Set("HX-Request", "true")
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Content-Security-Policy"))

		script := regexp.MustCompile(`<script nonce="([^"]+)">fetch\('/history/chart'\)`).FindStringSubmatch(w.Body.String())
		require.Len(t, script, 2)
		assert.Equal(t, csp[1], script[1])
	}
}
