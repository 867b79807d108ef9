// Package views holds the templ components of the app. Pages render either as
// an htmx fragment or inside Layout for direct navigation.
package views

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/quiz"
)

// placeholder stands in for an unanswered question or a missing patient.
const placeholder = "—"

// csrfHeaders is the hx-headers value that makes htmx send the CSRF token.
func csrfHeaders(token string) string {
	b, _ := json.Marshal(map[string]string{"X-CSRF-Token": token})
	return string(b)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isChosen(answers models.AnswerSet, questionID int, value float64) bool {
	v := answers[questionID]
	return v != nil && *v == value
}

func progressText(s *quiz.Session) string {
	answered, total := s.Progress()
	return fmt.Sprintf("%d/%d", answered, total)
}

func answerLabel(catalog *models.Catalog, answers models.AnswerSet, questionID int) string {
	if v := answers[questionID]; v != nil {
		if label, ok := catalog.OptionLabel(questionID, *v); ok {
			return label
		}
	}
	return placeholder
}

func patientName(sub *models.Submission) string {
	if sub.PatientInfo == nil {
		return placeholder
	}
	return sub.PatientInfo.Name
}

func patientAge(sub *models.Submission) string {
	if sub.PatientInfo == nil {
		return placeholder
	}
	return strconv.Itoa(sub.PatientInfo.Age)
}

func rowID(id int64) string {
	return "submission-" + strconv.FormatInt(id, 10)
}

// withPatient keeps the history filter on action URLs so the list the action
// re-renders is the one the user was looking at.
func withPatient(path, patient string) string {
	if patient == "" {
		return path
	}
	return path + "?" + url.Values{"patient": {patient}}.Encode()
}

func exportURL(id int64, patient string) string {
	return withPatient("/history/"+strconv.FormatInt(id, 10)+"/export", patient)
}

func deleteURL(id int64, patient string) string {
	return withPatient("/history/"+strconv.FormatInt(id, 10)+"/delete", patient)
}
