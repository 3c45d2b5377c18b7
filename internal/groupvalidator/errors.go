package groupvalidator

import "strings"

// ValidationError aggregates group validation issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "group validation failed"
	}
	return "group validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// New builds a ValidationError from literal issues. Useful for single-issue
// failures raised outside the validator itself.
func New(issues ...string) *ValidationError {
	err := &ValidationError{}
	for _, issue := range issues {
		err.Add(issue)
	}
	return err
}
