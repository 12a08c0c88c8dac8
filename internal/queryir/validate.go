package queryir

import "fmt"

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	// Errors lists every problem found, in traversal order.
	Errors []string
}

// Err returns the first error as an error value, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 1 {
		return fmt.Errorf("invalid query: %s", r.Errors[0])
	}
	return fmt.Errorf("invalid query: %s (and %d more)", r.Errors[0], len(r.Errors)-1)
}

// Validate checks a query against the set of known columns.
//
// Rules:
//  1. Every referenced field must be a known column
//  2. An Update needs at least one assignment
//  3. The surrogate key "id" cannot be assigned
//  4. Contains needs a non-empty substring
//  5. Replace needs a non-empty Old string
//
// Validate is a pure function with no side effects.
func Validate(query Query, isColumn func(string) bool) ValidationResult {
	v := &validator{
		isColumn: isColumn,
		errors:   []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

// validator accumulates errors during traversal.
type validator struct {
	isColumn func(string) bool
	errors   []string
}

// addError appends an error message.
func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) checkField(field string) {
	if field == "" {
		v.addError("empty field name")
		return
	}
	if v.isColumn != nil && !v.isColumn(field) {
		v.addError("unknown field %q", field)
	}
}

// validateQuery validates a query node.
func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addError("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Update:
		v.validateUpdate(query)
	case *Update:
		v.validateUpdate(*query)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	for _, f := range sel.Fields {
		v.checkField(f)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validateUpdate(upd Update) {
	if len(upd.Assignments) == 0 {
		v.addError("update has no assignments")
	}
	for _, a := range upd.Assignments {
		v.validateAssignment(a)
	}
	v.validatePredicate(upd.Filter)
}

func (v *validator) validateAssignment(a Assignment) {
	var field string
	switch asg := a.(type) {
	case Set:
		field = asg.Field
	case *Set:
		field = asg.Field
	case Replace:
		field = asg.Field
		if asg.Old == "" {
			v.addError("replace on %q with empty search string", asg.Field)
		}
	case *Replace:
		field = asg.Field
		if asg.Old == "" {
			v.addError("replace on %q with empty search string", asg.Field)
		}
	default:
		v.addError("unknown assignment type: %T", a)
		return
	}
	v.checkField(field)
	if field == "id" {
		v.addError("field %q is the surrogate key and cannot be assigned", field)
	}
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return // nil predicates are valid (no filter)
	}

	switch pred := p.(type) {
	case Equals:
		v.checkField(pred.Field)
	case *Equals:
		v.checkField(pred.Field)
	case Contains:
		v.validateContains(pred)
	case *Contains:
		v.validateContains(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateContains(c Contains) {
	v.checkField(c.Field)
	if c.Substring == "" {
		v.addError("contains on %q with empty substring", c.Field)
	}
}

func (v *validator) validateAnd(and And) {
	for _, subPred := range and.Predicates {
		v.validatePredicate(subPred)
	}
}
