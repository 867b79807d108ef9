package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// AnswerSet maps a question id to the chosen option value. A nil value means
// the question is unanswered.
type AnswerSet map[int]*float64

// NewAnswerSet returns an answer set with every catalog question unanswered.
func NewAnswerSet(catalog *Catalog) AnswerSet {
	answers := make(AnswerSet, len(catalog.Questions()))
	for _, q := range catalog.Questions() {
		answers[q.ID] = nil
	}
	return answers
}

// Clone deep-copies the set so later edits never leak into a snapshot.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for id, v := range a {
		if v == nil {
			out[id] = nil
			continue
		}
		val := *v
		out[id] = &val
	}
	return out
}

// Answered counts the questions that carry a value.
func (a AnswerSet) Answered() int {
	n := 0
	for _, v := range a {
		if v != nil {
			n++
		}
	}
	return n
}

// Score is the mean of the answered values rounded to two decimals, or 0
// when nothing is answered.
func (a AnswerSet) Score() float64 {
	ids := make([]int, 0, len(a))
	for id, v := range a {
		if v != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0
	}
	sort.Ints(ids)

	sum := 0.0
	for _, id := range ids {
		sum += *a[id]
	}
	return RoundScore(sum / float64(len(ids)))
}

// RoundScore rounds half away from zero to two decimals.
func RoundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatScore renders a score with exactly two decimals.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Submission is one completed quiz attempt. It is immutable once stored.
type Submission struct {
	ID          int64        `json:"id"`
	Date        string       `json:"date"`
	PatientInfo *PatientInfo `json:"patientInfo,omitempty"`
	Answers     AnswerSet    `json:"answers"`
	Score       float64      `json:"score"`
}

// SubmissionRecord is the persisted row for a Submission.
type SubmissionRecord struct {
	ID            int64 `gorm:"primaryKey;autoIncrement:false"`
	Date          string
	PatientName   *string
	PatientAge    *int
	PatientGender *string
	Answers       AnswerSet `gorm:"serializer:json"`
	Score         float64
	CreatedAt     time.Time
}

func (SubmissionRecord) TableName() string {
	return "submissions"
}

// SchemaVersion records the applied schema upgrades of the local store.
type SchemaVersion struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time
}

// NewSubmissionRecord flattens a submission into its row form.
func NewSubmissionRecord(s *Submission) *SubmissionRecord {
	rec := &SubmissionRecord{
		ID:      s.ID,
		Date:    s.Date,
		Answers: s.Answers.Clone(),
		Score:   s.Score,
	}
	if p := s.PatientInfo; p != nil {
		name, age, gender := p.Name, p.Age, string(p.Gender)
		rec.PatientName = &name
		rec.PatientAge = &age
		if gender != "" {
			rec.PatientGender = &gender
		}
	}
	return rec
}

// Submission rebuilds the domain value from a row.
func (r *SubmissionRecord) Submission() *Submission {
	s := &Submission{
		ID:      r.ID,
		Date:    r.Date,
		Answers: r.Answers.Clone(),
		Score:   r.Score,
	}
	if s.Answers == nil {
		s.Answers = AnswerSet{}
	}
	if r.PatientName != nil {
		p := &PatientInfo{Name: *r.PatientName}
		if r.PatientAge != nil {
			p.Age = *r.PatientAge
		}
		if r.PatientGender != nil {
			p.Gender = Gender(*r.PatientGender)
		}
		s.PatientInfo = p
	}
	return s
}
