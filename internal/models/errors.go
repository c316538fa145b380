package models

import "fmt"

// MalformedInputError reports input that is missing a required field or
// has the wrong shape. Source names the file or document, Field the part
// that failed, and Index the offending record when there is one (-1 if not).
type MalformedInputError struct {
	Source string `json:"source"`
	Field  string `json:"field"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *MalformedInputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed %s: %s[%d]: %s", e.Source, e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed %s: %s: %s", e.Source, e.Field, e.Reason)
}

// Malformed builds a MalformedInputError without a record index.
func Malformed(source, field, reason string) *MalformedInputError {
	return &MalformedInputError{Source: source, Field: field, Index: -1, Reason: reason}
}

// MalformedAt builds a MalformedInputError pointing at record i.
func MalformedAt(source, field string, i int, reason string) *MalformedInputError {
	return &MalformedInputError{Source: source, Field: field, Index: i, Reason: reason}
}
