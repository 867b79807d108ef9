package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/database"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/quiz"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"
	"github.com/4uJustDev/medical-calculator-haq/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCatalog(t *testing.T) *models.Catalog {
	t.Helper()
	opts := []models.Option{
		{Value: 0, Label: "Without any difficulty"},
		{Value: 1, Label: "With some difficulty"},
		{Value: 2, Label: "With much difficulty"},
		{Value: 3, Label: "Unable to do"},
	}
	catalog, err := models.NewCatalog("HAQ-DI", "Usual abilities over the past week.", "0-3", []models.Category{
		{Name: "Dressing", Questions: []models.Question{{ID: 1, Text: "Dress yourself?", Options: opts}}},
		{Name: "Arising", Questions: []models.Question{{ID: 2, Text: "Stand up?", Options: opts}}},
	})
	require.NoError(t, err)
	return catalog
}

type failingStore struct {
	repository.DiscardStore
}

func (failingStore) Persistent() bool { return true }

func (failingStore) Insert(context.Context, *models.Submission) error {
	return models.ErrStorageUnavailable
}

// lockedStore lists and loads normally but refuses every delete.
type lockedStore struct {
	*repository.GormSubmissionStore
}

func (lockedStore) DeleteByID(context.Context, int64) error {
	return models.ErrStorageUnavailable
}

func newTestEngine(t *testing.T, store repository.SubmissionStore, requirePatient bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := testCatalog(t)
	log := zap.NewNop()
	reportConfig := func() config.ReportConfig {
		return config.ReportConfig{FilePrefix: "HAQ-DI_"}
	}
	history := services.NewHistoryService(log, store, catalog, reportConfig)
	qh := NewQuizHandler(log, catalog, store, quiz.NewIDSource(), requirePatient)
	hh := NewHistoryHandler(log, history, catalog)

	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("test-secret"))))
	r.GET("/quiz", qh.Show)
	r.POST("/quiz/start", qh.Start)
	r.POST("/quiz/answer", qh.Answer)
	r.POST("/quiz/next", qh.Next)
	r.POST("/quiz/prev", qh.Prev)
	r.POST("/quiz/submit", qh.Submit)
	r.POST("/quiz/reset", qh.Reset)
	r.POST("/quiz/patient", qh.ChangePatient)
	r.GET("/catalog", qh.Catalog)
	r.GET("/history", hh.List)
	r.GET("/history/chart", hh.Chart)
	r.GET("/history/:id/export", hh.Export)
	r.POST("/history/:id/delete", hh.Delete)
	r.DELETE("/history/:id", hh.Delete)
	r.GET("/health", Health(history))
	return r
}

func newSQLiteStore(t *testing.T) *repository.GormSubmissionStore {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return repository.NewGormSubmissionStore(db)
}

// client keeps the session cookie between requests like a browser would.
type client struct {
	t       *testing.T
	engine  *gin.Engine
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, engine *gin.Engine) *client {
	return &client{t: t, engine: engine, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.engine.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return w
}

func (c *client) json(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := c.do(req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (c *client) htmx(method, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	return c.do(req)
}

func TestQuizFlowJSON(t *testing.T) {
	store := newSQLiteStore(t)
	c := newClient(t, newTestEngine(t, store, true))

	w, state := c.json(http.MethodGet, "/quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, state["collectingPatientInfo"])

	w, _ = c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 1, "value": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = c.json(http.MethodPost, "/quiz/start", gin.H{"name": "Anna Smith", "age": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, state = c.json(http.MethodPost, "/quiz/start", gin.H{"name": "Anna Smith", "age": 40, "gender": "female"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, state["collectingPatientInfo"])

	w, _ = c.json(http.MethodPost, "/quiz/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	subs, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)

	w, state = c.json(http.MethodPost, "/quiz/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), state["categoryIndex"], "next is a no-op on an incomplete category")

	w, _ = c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 1, "value": 2})
	require.Equal(t, http.StatusOK, w.Code)
	w, state = c.json(http.MethodPost, "/quiz/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), state["categoryIndex"])

	w, _ = c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 2, "value": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w, state = c.json(http.MethodPost, "/quiz/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, state["submitted"])
	assert.Equal(t, "2.50", state["scoreText"])

	w, _ = c.json(http.MethodPost, "/quiz/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	subs, err = store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 2.5, subs[0].Score)
	assert.Equal(t, "Anna Smith", subs[0].PatientInfo.Name)

	w, state = c.json(http.MethodPost, "/quiz/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, state["submitted"])
	assert.NotNil(t, state["patient"])

	w, state = c.json(http.MethodPost, "/quiz/patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, state["collectingPatientInfo"])
}

func TestAnswerUnknownQuestion(t *testing.T) {
	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, false))

	w, _ := c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 99, "value": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAnswerRejectsNonFiniteValues(t *testing.T) {
	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, false))

	for _, v := range []string{"NaN", "Inf", "-Infinity"} {
		w := c.htmx(http.MethodPost, "/quiz/answer", url.Values{"questionId": {"1"}, "value": {v}})
		require.Equal(t, http.StatusOK, w.Code, v)
		assert.Contains(t, w.Body.String(), "the answer is not a number", v)
	}

	w, state := c.json(http.MethodGet, "/quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	answers := state["answers"].(map[string]interface{})
	assert.Nil(t, answers["1"])
}

func TestSubmitStorageFailureKeepsAnswers(t *testing.T) {
	c := newClient(t, newTestEngine(t, failingStore{}, false))

	c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 1, "value": 1})
	c.json(http.MethodPost, "/quiz/answer", gin.H{"questionId": 2, "value": 1})

	w, body := c.json(http.MethodPost, "/quiz/submit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "storage")

	_, state := c.json(http.MethodGet, "/quiz", nil)
	assert.Equal(t, false, state["submitted"])
	assert.Equal(t, true, state["complete"])
}

func TestQuizPageHTML(t *testing.T) {
	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, true))

	w := c.do(httptest.NewRequest(http.MethodGet, "/quiz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<!doctype html>")
	assert.Contains(t, w.Body.String(), `hx-post="/quiz/start"`)

	w = c.htmx(http.MethodPost, "/quiz/start", url.Values{"name": {"Oleg"}, "age": {"55"}, "gender": {"unspecified"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<!doctype html>")
	assert.Contains(t, w.Body.String(), "Dress yourself?")

	w = c.htmx(http.MethodPost, "/quiz/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alert-warning")

	w = c.htmx(http.MethodPost, "/quiz/start", url.Values{"name": {"Oleg"}, "age": {"abc"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alert-error")
}

func TestSubmittedViewReportsStorageMode(t *testing.T) {
	submit := func(store repository.SubmissionStore) string {
		c := newClient(t, newTestEngine(t, store, false))
		c.htmx(http.MethodPost, "/quiz/answer", url.Values{"questionId": {"1"}, "value": {"1"}})
		c.htmx(http.MethodPost, "/quiz/answer", url.Values{"questionId": {"2"}, "value": {"2"}})
		w := c.htmx(http.MethodPost, "/quiz/submit", nil)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	body := submit(repository.DiscardStore{})
	assert.Contains(t, body, "this submission was not saved")
	assert.NotContains(t, body, "your answers have been saved")
	assert.Contains(t, body, "1.50")

	body = submit(newSQLiteStore(t))
	assert.Contains(t, body, "Thank you, your answers have been saved.")
	assert.NotContains(t, body, "alert-warning")

	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, false))
	_, state := c.json(http.MethodGet, "/quiz", nil)
	assert.Equal(t, false, state["persistent"])
}

func seedSubmission(t *testing.T, store repository.SubmissionStore, id int64, name string) {
	t.Helper()
	one, three := 1.0, 3.0
	require.NoError(t, store.Insert(context.Background(), &models.Submission{
		ID:          id,
		Date:        "05.03.2024, 14:07:09",
		PatientInfo: &models.PatientInfo{Name: name, Age: 40},
		Answers:     models.AnswerSet{1: &one, 2: &three},
		Score:       2,
	}))
}

func TestHistoryListAndDelete(t *testing.T) {
	store := newSQLiteStore(t)
	seedSubmission(t, store, 1000, "Anna")
	seedSubmission(t, store, 2000, "Oleg")
	c := newClient(t, newTestEngine(t, store, true))

	w, body := c.json(http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["submissions"], 2)
	assert.Equal(t, true, body["persistent"])

	w, body = c.json(http.MethodGet, "/history?patient=Oleg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["submissions"], 1)

	w, _ = c.json(http.MethodDelete, "/history/1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = c.json(http.MethodDelete, "/history/1000", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = c.htmx(http.MethodPost, "/history/2000/delete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Submission deleted.")
	assert.NotContains(t, w.Body.String(), "submission-2000")

	subs, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)

	w, _ = c.json(http.MethodDelete, "/history/abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHistoryPageWithoutStorage(t *testing.T) {
	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, true))

	w := c.htmx(http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Local storage is unavailable")
	assert.Contains(t, w.Body.String(), "No submissions yet.")
}

func TestDeleteFailureKeepsRow(t *testing.T) {
	store := newSQLiteStore(t)
	seedSubmission(t, store, 1000, "Anna")
	c := newClient(t, newTestEngine(t, lockedStore{store}, true))

	w := c.htmx(http.MethodPost, "/history/1000/delete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alert-error")
	assert.Contains(t, w.Body.String(), "Local storage is unavailable. Please try again later.")
	assert.Contains(t, w.Body.String(), `id="submission-1000"`)
	assert.NotContains(t, w.Body.String(), "Submission deleted.")

	w, body := c.json(http.MethodDelete, "/history/1000", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotNil(t, body["error"])

	subs, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(1000), subs[0].ID)
}

func TestExport(t *testing.T) {
	store := newSQLiteStore(t)
	seedSubmission(t, store, 1000, "Anna Smith")
	c := newClient(t, newTestEngine(t, store, true))

	w := c.do(httptest.NewRequest(http.MethodGet, "/history/1000/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=HAQ-DI_Anna_Smith.pdf`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = c.htmx(http.MethodGet, "/history/1000/export?patient=Anna+Smith", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "/history/1000/export", w.Header().Get("HX-Redirect"))
	assert.Empty(t, w.Body.Bytes())

	w, _ = c.json(http.MethodGet, "/history/"+strconv.Itoa(5)+"/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.htmx(http.MethodGet, "/history/5/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("HX-Redirect"))
	assert.Contains(t, w.Body.String(), "That submission no longer exists.")
	assert.Contains(t, w.Body.String(), `id="submission-1000"`)
}

func TestExportFailureShowsAlert(t *testing.T) {
	store := newSQLiteStore(t)
	seven := 7.0
	require.NoError(t, store.Insert(context.Background(), &models.Submission{
		ID:          1000,
		Date:        "05.03.2024, 14:07:09",
		PatientInfo: &models.PatientInfo{Name: "Anna", Age: 40},
		Answers:     models.AnswerSet{1: &seven, 2: nil},
		Score:       7,
	}))
	c := newClient(t, newTestEngine(t, store, true))

	w := c.htmx(http.MethodGet, "/history/1000/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("HX-Redirect"))
	assert.Contains(t, w.Body.String(), "alert-error")
	assert.Contains(t, w.Body.String(), "Export failed. The report could not be created.")
	assert.Contains(t, w.Body.String(), `id="submission-1000"`)

	w = c.do(httptest.NewRequest(http.MethodGet, "/history/1000/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Export failed.")

	w, body := c.json(http.MethodGet, "/history/1000/export", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Export failed. The report could not be created.", body["error"])
}

func TestChartAndHealth(t *testing.T) {
	store := newSQLiteStore(t)
	seedSubmission(t, store, 1000, "Anna")
	c := newClient(t, newTestEngine(t, store, true))

	w, body := c.json(http.MethodGet, "/history/chart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "series")

	w, body = c.json(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "persistent", body["storage"])

	c = newClient(t, newTestEngine(t, repository.DiscardStore{}, true))
	_, body = c.json(http.MethodGet, "/health", nil)
	assert.Equal(t, "memory", body["storage"])
}

func TestCatalogJSON(t *testing.T) {
	c := newClient(t, newTestEngine(t, repository.DiscardStore{}, true))

	w, body := c.json(http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HAQ-DI", body["questionnaire"])
	assert.Len(t, body["categories"], 2)
}
