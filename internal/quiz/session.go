// Package quiz holds the wizard state of one questionnaire attempt and turns a
// completed attempt into a Submission.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"
)

// DateLayout is the human readable timestamp stored with each submission.
const DateLayout = "02.01.2006, 15:04:05"

// SubmissionWriter persists a finished submission.
type SubmissionWriter interface {
	Insert(ctx context.Context, sub *models.Submission) error
}

// Session is the in-progress state of one quiz attempt. It is a plain value
// that survives a JSON round trip, so callers can keep it wherever they keep
// per-user state and restore it against the catalog.
type Session struct {
	CategoryIndex         int                 `json:"categoryIndex"`
	Answers               models.AnswerSet    `json:"answers"`
	Patient               *models.PatientInfo `json:"patient,omitempty"`
	Submitted             bool                `json:"submitted"`
	CollectingPatientInfo bool                `json:"collectingPatientInfo"`
	LastSubmissionID      int64               `json:"lastSubmissionId,omitempty"`

	requirePatient bool
	catalog        *models.Catalog
}

// New creates a fresh session. With requirePatient set the session starts in
// the patient-info step and refuses answers until Start succeeds.
func New(catalog *models.Catalog, requirePatient bool) *Session {
	s := &Session{catalog: catalog, requirePatient: requirePatient}
	s.Initialize()
	s.Patient = nil
	s.CollectingPatientInfo = requirePatient
	return s
}

// Restore decodes a session produced by Encode and reconciles it with the
// catalog: unknown answers are dropped, missing ones are added unanswered and
// the category index is clamped.
func Restore(catalog *models.Catalog, requirePatient bool, data []byte) (*Session, error) {
	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode quiz session: %w", err)
	}
	s.catalog = catalog
	s.requirePatient = requirePatient

	answers := models.NewAnswerSet(catalog)
	for id, v := range s.Answers {
		if _, ok := answers[id]; ok {
			answers[id] = v
		}
	}
	s.Answers = answers

	if s.CategoryIndex < 0 {
		s.CategoryIndex = 0
	}
	if last := catalog.CategoryCount() - 1; s.CategoryIndex > last {
		s.CategoryIndex = last
	}
	s.CollectingPatientInfo = requirePatient && s.Patient == nil && !s.Submitted
	return s, nil
}

// Encode serializes the session for storage between requests.
func (s *Session) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Session) Catalog() *models.Catalog {
	return s.catalog
}

// Initialize marks every question unanswered and rewinds to the first category.
func (s *Session) Initialize() {
	s.Answers = models.NewAnswerSet(s.catalog)
	s.CategoryIndex = 0
	s.Submitted = false
	s.LastSubmissionID = 0
}

// Start records the patient and leaves the patient-info step.
func (s *Session) Start(patient models.PatientInfo) error {
	if s.Submitted {
		return models.ErrAlreadySubmitted
	}
	if err := patient.Validate(); err != nil {
		return err
	}
	p := patient.Normalize()
	s.Patient = &p
	s.CollectingPatientInfo = false
	return nil
}

// SetAnswer overwrites the value for a question. The value is not checked
// against the question's options.
func (s *Session) SetAnswer(questionID int, value float64) error {
	if s.Submitted {
		return models.ErrAlreadySubmitted
	}
	if s.CollectingPatientInfo {
		return models.ErrPatientInfoRequired
	}
	if _, ok := s.catalog.Question(questionID); !ok {
		return fmt.Errorf("%w: %d", models.ErrUnknownQuestion, questionID)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: answer to question %d is not a finite number", models.ErrValidation, questionID)
	}
	v := value
	s.Answers[questionID] = &v
	return nil
}

// CurrentCategory returns the category the wizard is on.
func (s *Session) CurrentCategory() models.Category {
	cat, _ := s.catalog.Category(s.CategoryIndex)
	return cat
}

func (s *Session) IsFirstCategory() bool {
	return s.CategoryIndex == 0
}

func (s *Session) IsLastCategory() bool {
	return s.CategoryIndex == s.catalog.CategoryCount()-1
}

// IsCategoryComplete reports whether every question of category index has a value.
func (s *Session) IsCategoryComplete(index int) bool {
	cat, ok := s.catalog.Category(index)
	if !ok {
		return false
	}
	for _, q := range cat.Questions {
		if s.Answers[q.ID] == nil {
			return false
		}
	}
	return true
}

// Advance moves to the next category. It is a no-op returning false when the
// current category is incomplete or already the last one.
func (s *Session) Advance() bool {
	if s.CollectingPatientInfo || s.Submitted {
		return false
	}
	if s.IsLastCategory() || !s.IsCategoryComplete(s.CategoryIndex) {
		return false
	}
	s.CategoryIndex++
	return true
}

// Retreat moves to the previous category; a no-op on the first one.
func (s *Session) Retreat() bool {
	if s.CollectingPatientInfo || s.Submitted {
		return false
	}
	if s.IsFirstCategory() {
		return false
	}
	s.CategoryIndex--
	return true
}

// IsComplete reports whether the whole catalog is answered. This, not the
// last category alone, gates submission.
func (s *Session) IsComplete() bool {
	for _, q := range s.catalog.Questions() {
		if s.Answers[q.ID] == nil {
			return false
		}
	}
	return true
}

// Score is the mean of the answered values, see models.AnswerSet.Score.
func (s *Session) Score() float64 {
	return s.Answers.Score()
}

// Progress returns how many questions are answered out of the total.
func (s *Session) Progress() (answered, total int) {
	return s.Answers.Answered(), len(s.catalog.Questions())
}

// Submit snapshots the session into a Submission and hands it to the store.
// The session only flips to submitted once the write succeeded; on any error
// it is left exactly as it was.
func (s *Session) Submit(ctx context.Context, store SubmissionWriter, ids *IDSource, now time.Time) (*models.Submission, error) {
	if s.Submitted {
		return nil, models.ErrAlreadySubmitted
	}
	if s.CollectingPatientInfo {
		return nil, models.ErrPatientInfoRequired
	}
	if !s.IsComplete() {
		return nil, models.ErrIncompleteQuiz
	}

	sub := &models.Submission{
		ID:      ids.Next(now),
		Date:    now.Format(DateLayout),
		Answers: s.Answers.Clone(),
		Score:   s.Score(),
	}
	if s.Patient != nil {
		p := *s.Patient
		sub.PatientInfo = &p
	}

	if err := store.Insert(ctx, sub); err != nil {
		return nil, err
	}

	s.Submitted = true
	s.LastSubmissionID = sub.ID
	return sub, nil
}

// Reset starts a new attempt for the same patient. Stored history is not touched.
func (s *Session) Reset() {
	s.Initialize()
	s.CollectingPatientInfo = s.requirePatient && s.Patient == nil
}

// ChangePatient drops the patient and returns to the patient-info step when
// the session collects one. Answers are reset as well.
func (s *Session) ChangePatient() {
	s.Initialize()
	s.Patient = nil
	s.CollectingPatientInfo = s.requirePatient
}
