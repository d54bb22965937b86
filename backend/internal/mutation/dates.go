package mutation

import (
	"strings"
	"time"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"
)

// DateLayout is the calendar date format accepted for work history.
const DateLayout = "2006-01-02"

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperrors.NewInvalidInput(field, "expected YYYY-MM-DD, got "+value)
	}
	return t, nil
}

func parseWork(req WorkExperience) (*graph.WorkProps, error) {
	if strings.TrimSpace(req.Position) == "" {
		return nil, apperrors.NewInvalidInput("position", "is required")
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return nil, err
	}
	props := &graph.WorkProps{Position: req.Position, StartDate: start}

	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		end, err := parseDate("endDate", *req.EndDate)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, apperrors.NewInvalidInput("endDate", "is before startDate")
		}
		props.EndDate = &end
	}
	return props, nil
}
