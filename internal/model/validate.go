package model

import (
	"strconv"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateActivity checks an Activity for constraint violations.
// It returns a *ValidationError if any rules fail, or nil when valid.
func ValidateActivity(a *Activity) error {
	var ve ValidationError

	if a.OwnerID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "owner_id", Message: "is required"})
	}
	if strings.TrimSpace(a.Title) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "is required"})
	}
	if a.Status != "" && !a.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "status", Message: "unknown status " + a.Status.String()})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateTask checks a Task for constraint violations.
func ValidateTask(t *Task) error {
	var ve ValidationError

	title := strings.TrimSpace(t.Title)
	if title == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "is required"})
	} else if len([]rune(title)) > 500 {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "must be 500 characters or fewer"})
	}
	for _, y := range t.Years {
		if y < 1 || y > 13 {
			ve.Errors = append(ve.Errors, FieldError{Field: "years", Message: "must be between 1 and 13"})
			break
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateStudent checks a Student for constraint violations.
func ValidateStudent(s *Student) error {
	var ve ValidationError

	if strings.TrimSpace(s.Email) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "email", Message: "is required"})
	} else if !strings.Contains(s.Email, "@") {
		ve.Errors = append(ve.Errors, FieldError{Field: "email", Message: "is not a valid address"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateIdentities checks the shape of an identity-tuple list. An empty
// list is valid (it compiles to a match-nothing condition); a tuple with
// neither id nor email is not.
func ValidateIdentities(ids []Identity) error {
	var ve ValidationError
	for i, id := range ids {
		if id.Zero() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "identity",
				Message: "tuple " + strconv.Itoa(i) + " has neither owner id nor email",
			})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
