package rules

import "fmt"

// CompileError reports an invalid rule.
type CompileError struct {
	Rule    string
	Field   string
	Message string
}

func (e *CompileError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("rule %q: %s: %s", e.Rule, e.Field, e.Message)
}

// TemplateError reports a reference that could not be resolved at run time.
type TemplateError struct {
	Ref     string
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template ${%s}: %s", e.Ref, e.Message)
}
