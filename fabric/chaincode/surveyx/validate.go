package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type surveyInput struct {
	Title           string `validate:"required,max=200"`
	Description     string `validate:"max=2000"`
	DurationSeconds int64  `validate:"gt=0,lte=3153600000"` // at most 100 years
}

type questionInput struct {
	QuestionType uint8    `validate:"lte=3"`
	QuestionText string   `validate:"required,max=500"`
	Options      []string `validate:"dive,required,max=200"`
}

// validateInput runs the struct tags and reports the first failing field.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, lowerFirst(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// validateQuestionShape applies the per-type rules the tags cannot express.
func validateQuestionShape(qt QuestionType, options []string, maxRating uint32, p *Params) error {
	switch {
	case qt.isChoice():
		if len(options) == 0 {
			return fmt.Errorf("%w: %s question needs options", ErrInvalidInput, qt)
		}
		if len(options) > p.MaxOptions {
			return fmt.Errorf("%w: at most %d options", ErrInvalidInput, p.MaxOptions)
		}
	case qt == Rating:
		if maxRating == 0 || maxRating > p.MaxRating {
			return fmt.Errorf("%w: maxRating must be in [1,%d]", ErrInvalidInput, p.MaxRating)
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
