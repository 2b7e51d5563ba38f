package model

// Analysis is the structured result of running a code sample through the
// AI capability. It is transient: produced once, consumed once to pre-fill
// the snippet form, never persisted.
//
// Fields may be empty — the capability client parses the model's JSON
// permissively and leaves anything missing at its zero value. The form is
// expected to tolerate blanks.
type Analysis struct {
	Title       string   `json:"title"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
