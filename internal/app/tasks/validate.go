package tasks

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// fieldRules holds the validator tags applied to each client field. Strict
// mode adds the enumerations for status and priority.
type fieldRules struct {
	title       string
	description string
	status      string
	priority    string
}

var (
	permissiveRules = fieldRules{
		title:       "required,max=100",
		description: "max=500",
		status:      "required",
		priority:    "",
	}
	strictRules = fieldRules{
		title:       "required,max=100",
		description: "max=500",
		status:      "required,oneof=pending in-progress completed",
		priority:    "min=1,max=5",
	}
)

func (s *Service) rules() fieldRules {
	if s.Strict {
		return strictRules
	}
	return permissiveRules
}

func checkField(field string, value any, tag string) error {
	if tag == "" {
		return nil
	}
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(field, "is invalid")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "max":
		if field == "priority" {
			return invalid(field, "must be at most "+fe.Param())
		}
		return invalid(field, "must be at most "+fe.Param()+" characters")
	case "min":
		return invalid(field, "must be at least "+fe.Param())
	case "oneof":
		return invalid(field, "must be one of: "+strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return invalid(field, "is invalid")
	}
}

func (s *Service) checkTitle(title string) error {
	return checkField("title", strings.TrimSpace(title), s.rules().title)
}

func (s *Service) checkDescription(description string) error {
	return checkField("description", description, s.rules().description)
}

func (s *Service) checkStatus(status string) error {
	return checkField("status", status, s.rules().status)
}

func (s *Service) checkPriority(priority int) error {
	return checkField("priority", priority, s.rules().priority)
}
