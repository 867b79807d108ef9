package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/quiz"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"
	"github.com/4uJustDev/medical-calculator-haq/internal/views"

	"github.com/a-h/templ"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const quizSessionKey = "quiz"

type QuizHandler struct {
	log            *zap.Logger
	catalog        *models.Catalog
	store          repository.SubmissionStore
	ids            *quiz.IDSource
	requirePatient bool
	now            func() time.Time
}

func NewQuizHandler(log *zap.Logger, catalog *models.Catalog, store repository.SubmissionStore, ids *quiz.IDSource, requirePatient bool) *QuizHandler {
	return &QuizHandler{
		log:            log,
		catalog:        catalog,
		store:          store,
		ids:            ids,
		requirePatient: requirePatient,
		now:            time.Now,
	}
}

// sessionView is the JSON form of the quiz state.
type sessionView struct {
	CategoryIndex         int                 `json:"categoryIndex"`
	CategoryCount         int                 `json:"categoryCount"`
	Category              string              `json:"category"`
	Answers               models.AnswerSet    `json:"answers"`
	Patient               *models.PatientInfo `json:"patient,omitempty"`
	CollectingPatientInfo bool                `json:"collectingPatientInfo"`
	CategoryComplete      bool                `json:"categoryComplete"`
	Complete              bool                `json:"complete"`
	Submitted             bool                `json:"submitted"`
	Persistent            bool                `json:"persistent"`
	LastSubmissionID      int64               `json:"lastSubmissionId,omitempty"`
	Score                 float64             `json:"score"`
	ScoreText             string              `json:"scoreText"`
	Notice                string              `json:"notice,omitempty"`
}

func newSessionView(s *quiz.Session) sessionView {
	return sessionView{
		CategoryIndex:         s.CategoryIndex,
		CategoryCount:         s.Catalog().CategoryCount(),
		Category:              s.CurrentCategory().Name,
		Answers:               s.Answers,
		Patient:               s.Patient,
		CollectingPatientInfo: s.CollectingPatientInfo,
		CategoryComplete:      s.IsCategoryComplete(s.CategoryIndex),
		Complete:              s.IsComplete(),
		Submitted:             s.Submitted,
		LastSubmissionID:      s.LastSubmissionID,
		Score:                 s.Score(),
		ScoreText:             models.FormatScore(s.Score()),
	}
}

// load restores the quiz session from the cookie session, starting a new one
// when there is none or it cannot be decoded.
func (h *QuizHandler) load(c *gin.Context) *quiz.Session {
	session := sessions.Default(c)
	if raw, ok := session.Get(quizSessionKey).(string); ok {
		s, err := quiz.Restore(h.catalog, h.requirePatient, []byte(raw))
		if err == nil {
			return s
		}
		h.log.Warn("Discarding unreadable quiz session", zap.Error(err))
	}
	return quiz.New(h.catalog, h.requirePatient)
}

func (h *QuizHandler) save(c *gin.Context, s *quiz.Session) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Set(quizSessionKey, string(data))
	return session.Save()
}

// respond renders the session with an optional notice. kind is an alert kind;
// errors carry their own status for JSON clients.
func (h *QuizHandler) respond(c *gin.Context, s *quiz.Session, status int, notice, kind string) {
	if wantsJSON(c) {
		view := newSessionView(s)
		view.Persistent = h.store.Persistent()
		view.Notice = notice
		if status >= http.StatusBadRequest {
			c.JSON(status, gin.H{"error": notice, "state": view})
			return
		}
		c.JSON(status, view)
		return
	}

	var alert templ.Component
	if notice != "" {
		alert = views.Alert(notice, kind)
	}
	// htmx only swaps 2xx responses, the alert carries the failure
	render(c, http.StatusOK, "Questionnaire", "quiz", views.QuizPage(s, h.store.Persistent(), alert))
}

// commit saves the session and renders it.
func (h *QuizHandler) commit(c *gin.Context, s *quiz.Session, notice, kind string) {
	if err := h.save(c, s); err != nil {
		h.log.Error("Failed to save quiz session", zap.Error(err))
		h.respond(c, s, http.StatusInternalServerError, "Could not save your progress.", "error")
		return
	}
	h.respond(c, s, http.StatusOK, notice, kind)
}

func (h *QuizHandler) fail(c *gin.Context, s *quiz.Session, err error) {
	h.respond(c, s, statusFor(err), userMessage(err), "error")
}

// Show renders the current step.
func (h *QuizHandler) Show(c *gin.Context) {
	h.respond(c, h.load(c), http.StatusOK, "", "")
}

type startRequest struct {
	Name   string      `form:"name" json:"name"`
	Age    json.Number `form:"age" json:"age"`
	Gender string      `form:"gender" json:"gender"`
}

// Start records the patient's details and opens the first category.
func (h *QuizHandler) Start(c *gin.Context) {
	s := h.load(c)

	var req startRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, s, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	age, err := strconv.Atoi(req.Age.String())
	if err != nil {
		h.respond(c, s, http.StatusUnprocessableEntity, "Please check your input: age must be a whole number.", "error")
		return
	}

	patient := models.PatientInfo{Name: req.Name, Age: age, Gender: models.Gender(req.Gender)}
	if err := s.Start(patient); err != nil {
		h.fail(c, s, err)
		return
	}
	h.commit(c, s, "", "")
}

type answerRequest struct {
	QuestionID json.Number `form:"questionId" json:"questionId"`
	Value      json.Number `form:"value" json:"value"`
}

// Answer sets the value of one question.
func (h *QuizHandler) Answer(c *gin.Context) {
	s := h.load(c)

	var req answerRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, s, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	questionID, err := strconv.Atoi(req.QuestionID.String())
	if err != nil {
		h.fail(c, s, models.ErrUnknownQuestion)
		return
	}
	value, err := strconv.ParseFloat(req.Value.String(), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		h.respond(c, s, http.StatusUnprocessableEntity, "Please check your input: the answer is not a number.", "error")
		return
	}

	if err := s.SetAnswer(questionID, value); err != nil {
		h.fail(c, s, err)
		return
	}
	h.commit(c, s, "", "")
}

// Next advances to the next category once the current one is complete.
func (h *QuizHandler) Next(c *gin.Context) {
	s := h.load(c)
	if !s.Advance() {
		notice := ""
		if !s.CollectingPatientInfo && !s.Submitted && !s.IsCategoryComplete(s.CategoryIndex) {
			notice = "Please answer every question in this section before continuing."
		}
		h.respond(c, s, http.StatusOK, notice, "warning")
		return
	}
	h.commit(c, s, "", "")
}

// Prev goes back one category.
func (h *QuizHandler) Prev(c *gin.Context) {
	s := h.load(c)
	if !s.Retreat() {
		h.respond(c, s, http.StatusOK, "", "")
		return
	}
	h.commit(c, s, "", "")
}

// Submit stores the finished questionnaire. The submitted view is only shown
// after the store confirmed the write.
func (h *QuizHandler) Submit(c *gin.Context) {
	s := h.load(c)

	sub, err := s.Submit(c.Request.Context(), h.store, h.ids, h.now())
	if err != nil {
		if models.IsStorageError(err) {
			h.log.Error("Failed to store submission", zap.Error(err))
		}
		h.fail(c, s, err)
		return
	}

	h.log.Info("Submission stored", zap.Int64("id", sub.ID), zap.Float64("score", sub.Score))
	h.commit(c, s, "", "")
}

// Reset starts the questionnaire over for the same patient.
func (h *QuizHandler) Reset(c *gin.Context) {
	s := h.load(c)
	s.Reset()
	h.commit(c, s, "", "")
}

// ChangePatient starts over with a new patient.
func (h *QuizHandler) ChangePatient(c *gin.Context) {
	s := h.load(c)
	s.ChangePatient()
	h.commit(c, s, "", "")
}

// Catalog returns the questionnaire definition.
func (h *QuizHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog)
}
