package analytics

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/daterange"
)

// Query is a caller's loosely specified filter. Explicit start/end dates take
// precedence over DateRange.
type Query struct {
	DateRange string `json:"date_range" validate:"omitempty,max=32"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Category  string `json:"category" validate:"omitempty,max=256"`
	Region    string `json:"region" validate:"omitempty,max=256"`
	Segment   string `json:"segment" validate:"omitempty,max=256"`
}

// Resolved is a validated query: the concrete window and the filter built from it.
type Resolved struct {
	Range  daterange.Range
	Filter aggregate.Filter
}

type forecastParams struct {
	Horizon int `json:"forecast_periods" validate:"min=1,max=730"`
}

type topParams struct {
	Limit int `json:"limit" validate:"min=0,max=1000"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs struct validation and converts the first failure into a ValidationError.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Message: describe(fe), Err: err}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return fmt.Sprintf("%q is not a YYYY-MM-DD date", fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// Resolve validates q and turns it into a concrete window and filter.
func (s *Service) Resolve(q Query) (Resolved, error) {
	q = q.trimmed()
	if err := s.check(q); err != nil {
		return Resolved{}, err
	}

	var (
		rng daterange.Range
		err error
	)
	if q.StartDate != "" || q.EndDate != "" {
		rng, err = explicitRange(q.StartDate, q.EndDate)
		if err != nil {
			return Resolved{}, invalid("start_date", err)
		}
	} else {
		rng, err = s.resolver.Resolve(q.DateRange)
		if err != nil {
			return Resolved{}, invalid("date_range", err)
		}
	}

	f := aggregate.Filter{
		Start:    rng.Start,
		End:      rng.End,
		Category: q.Category,
		Region:   q.Region,
		Segment:  q.Segment,
	}
	if err := f.Validate(); err != nil {
		return Resolved{}, invalid("start_date", err)
	}
	return Resolved{Range: rng, Filter: f}, nil
}

func explicitRange(start, end string) (daterange.Range, error) {
	var r daterange.Range
	var err error
	if start != "" {
		if r.Start, err = daterange.ParseDate(start); err != nil {
			return daterange.Range{}, err
		}
	}
	if end != "" {
		if r.End, err = daterange.ParseDate(end); err != nil {
			return daterange.Range{}, err
		}
	}
	return daterange.Explicit(r.Start, r.End)
}

func (q Query) trimmed() Query {
	return Query{
		DateRange: strings.TrimSpace(q.DateRange),
		StartDate: strings.TrimSpace(q.StartDate),
		EndDate:   strings.TrimSpace(q.EndDate),
		Category:  strings.TrimSpace(q.Category),
		Region:    strings.TrimSpace(q.Region),
		Segment:   strings.TrimSpace(q.Segment),
	}
}
