package rules

import (
	"fmt"
	"strings"
)

// ValidationError describes a single validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRules checks a rule list for structural problems. The engine does
// not require valid rules (a bad rule simply never matches); this is for
// authoring tools.
func ValidateRules(rules []Rule) []ValidationError {
	var errs []ValidationError

	for i, r := range rules {
		prefix := fmt.Sprintf("rules[%d]", i)

		if r.ID == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".id",
				Message: "is required",
			})
		}

		if !validKinds[r.Kind] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown type %q", r.Kind),
			})
			continue
		}

		switch r.Kind {
		case MatchSubstring:
			if strings.TrimSpace(r.Pattern) == "" {
				errs = append(errs, ValidationError{
					Field:   prefix + ".pattern",
					Message: "is required for substring rules",
				})
			}
			if len(r.Patterns) > 0 {
				errs = append(errs, ValidationError{
					Field:   prefix + ".patterns",
					Message: "not used by substring rules; set pattern instead",
				})
			}
		default:
			if r.Pattern != "" {
				errs = append(errs, ValidationError{
					Field:   prefix + ".pattern",
					Message: fmt.Sprintf("not used by %s rules; set patterns instead", r.Kind),
				})
			}
		}
	}

	return errs
}
