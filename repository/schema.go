package repository

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrValidation marks schema or invariant failures detected before any SQL
// is issued. Callers test for it with errors.Is.
var ErrValidation = errors.New("record validation failed")

// Schema validates persistence records column by column before they reach
// the statement builder. Rules are ozzo-validation rules, so entity modules
// can reuse validation.Required, validation.Length, is.Email and friends.
type Schema struct {
	fields  map[string][]validation.Rule
	idRules []validation.Rule
}

// NewSchema returns an empty schema. Chain Field and ID calls to populate it.
func NewSchema() *Schema {
	return &Schema{fields: map[string][]validation.Rule{}}
}

// Field registers rules for one column. A column with no registered rules is
// unknown to the schema and is rejected on every write path.
func (s *Schema) Field(name string, rules ...validation.Rule) *Schema {
	s.fields[name] = rules
	return s
}

// ID registers rules applied to raw identifiers before they are bound into a
// WHERE clause.
func (s *Schema) ID(rules ...validation.Rule) *Schema {
	s.idRules = rules
	return s
}

// Validate checks a full record: every schema column is validated, including
// absent ones (absent behaves as nil, so validation.Required rejects it), and
// columns the schema does not know are rejected outright.
func (s *Schema) Validate(rec Record) error {
	if s == nil {
		return nil
	}
	if err := s.rejectUnknown(rec); err != nil {
		return err
	}
	for name, rules := range s.fields {
		if err := validation.Validate(rec[name], rules...); err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrValidation, name, err)
		}
	}
	return nil
}

// ValidatePartial checks only the columns present in the record. Used on
// update paths, where undefined columns are legitimately omitted.
func (s *Schema) ValidatePartial(rec Record) error {
	if s == nil {
		return nil
	}
	if err := s.rejectUnknown(rec); err != nil {
		return err
	}
	for name, value := range rec {
		if err := validation.Validate(value, s.fields[name]...); err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrValidation, name, err)
		}
	}
	return nil
}

// ValidateID applies the registered id rules, if any, to a raw identifier.
func (s *Schema) ValidateID(id any) error {
	if s == nil || len(s.idRules) == 0 {
		return nil
	}
	if err := validation.Validate(id, s.idRules...); err != nil {
		return fmt.Errorf("%w: id: %v", ErrValidation, err)
	}
	return nil
}

func (s *Schema) rejectUnknown(rec Record) error {
	for name := range rec {
		if _, ok := s.fields[name]; !ok {
			return fmt.Errorf("%w: unknown column %q", ErrValidation, name)
		}
	}
	return nil
}
