package validation

import (
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// ValidatePerformanceQuery decodes and validates the query parameters of a
// performance request into a filter. Empty parameters are valid: the filter
// zero value computes over the full history.
func ValidatePerformanceQuery(req request.PerformanceQuery) (model.PerformanceFilter, error) {
	errors := make(map[string]string)
	filter := model.PerformanceFilter{Institution: req.Institution}

	var from, to time.Time
	var err error

	if req.From != "" {
		from, err = ParseTime(req.From)
		if err != nil {
			errors["from"] = "must be a date in 2006-01-02 or RFC3339 format"
		}
		filter.From = from
	}

	if req.To != "" {
		to, err = ParseTime(req.To)
		if err != nil {
			errors["to"] = "must be a date in 2006-01-02 or RFC3339 format"
		}
		filter.To = to
	}

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		errors["from"] = "must not be after to"
	}

	if len(errors) > 0 {
		return model.PerformanceFilter{}, &Error{Fields: errors}
	}
	return filter, nil
}
