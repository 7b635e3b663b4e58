package mongo

// InsertResult is the structured outcome of an insert. Exactly one shape
// holds: OK with ID set, or !OK with FieldErrors keyed by field path
// (validation failure or uniqueness conflict).
type InsertResult struct {
	OK          bool
	ID          ID
	FieldErrors map[string]string
}

// SaveResult is the structured outcome of a save or patch. NoOp reports that
// the computed change-set was empty and nothing was written; callers must
// treat it as distinct from both success-with-write and failure.
type SaveResult struct {
	OK          bool
	NoOp        bool
	Document    Document
	FieldErrors map[string]string
}
