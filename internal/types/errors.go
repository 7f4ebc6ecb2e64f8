package types

import "errors"

// Sentinel errors for rules-engine operations.
var (
	// ErrMixedOrList indicates an array match spec mixing mapping and
	// non-mapping elements. Fatal for the rule being compiled.
	ErrMixedOrList = errors.New("cannot mix objects and non-objects in match rule")

	// ErrInvalidPattern indicates a $regex/$nregex/$like/$nlike operand that
	// does not compile as a pattern.
	ErrInvalidPattern = errors.New("invalid pattern operand")

	// ErrUnsupportedValue indicates a Go value with no structured representation.
	ErrUnsupportedValue = errors.New("unsupported value type")

	// ErrMissingRecordID indicates a record without a string or numeric id field.
	ErrMissingRecordID = errors.New("record has no id")

	// ErrRuleNotFound indicates a rule id that is not in the rule set or store.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEmptyRuleID indicates a rule that reached storage without an id.
	ErrEmptyRuleID = errors.New("rule id is empty")

	// ErrDuplicateRuleID indicates two rules with the same id in one document.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
)
