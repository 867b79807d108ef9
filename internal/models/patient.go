package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
)

// PatientInfo is the metadata collected before a session starts.
type PatientInfo struct {
	Name   string `json:"name" validate:"required,max=200"`
	Age    int    `json:"age" validate:"gt=0,lte=150"`
	Gender Gender `json:"gender,omitempty" validate:"omitempty,oneof=male female unspecified"`
}

var validate = validator.New()

// Normalize trims the name and folds "unspecified" into the empty gender.
func (p PatientInfo) Normalize() PatientInfo {
	p.Name = strings.TrimSpace(p.Name)
	if p.Gender == "unspecified" {
		p.Gender = GenderUnspecified
	}
	return p
}

// Validate checks the normalized patient info.
func (p PatientInfo) Validate() error {
	err := validate.Struct(p.Normalize())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return fmt.Errorf("%w: invalid %s", ErrValidation, strings.Join(fields, ", "))
}

// GenderLabel is the display form used in views and reports.
func (p PatientInfo) GenderLabel() string {
	switch p.Gender {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	default:
		return "Not specified"
	}
}
