package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResearchQuery is a free-form question about a known dravya.
type ResearchQuery struct {
	Dravya string `json:"dravya" validate:"required"`
	Query  string `json:"query" validate:"required,max=2000"`
}

// ResearchResponse carries the generated answer.
type ResearchResponse struct {
	Answer string `json:"answer"`
}

// Normalize trims both fields and validates the result.
func (q ResearchQuery) Normalize() (ResearchQuery, error) {
	q.Dravya = strings.TrimSpace(q.Dravya)
	q.Query = strings.TrimSpace(q.Query)
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return q, &ValidationError{Fields: fields, Err: err}
		}
		return q, &ValidationError{Err: err}
	}
	return q, nil
}
