// Package inference provides the structured-inference provider client used
// by the registration flow: intent/state classification, field extraction,
// and contextual reply generation. The provider is treated as a black box
// that accepts a field schema and returns typed JSON.
package inference

// Classification is the classifier's judgment of one inbound message. It
// says whether the message contains the data the current state needs and
// what state should follow; it never carries extracted values.
type Classification struct {
	// Intent is a short label for what the user is doing
	// (e.g. "provide_name", "ask_question", "greeting", "unclear").
	Intent string `json:"intent"`
	// HasRequiredData reports whether the message contains the field the
	// current state collects.
	HasRequiredData bool `json:"has_required_data"`
	// NextState is the recommended state, restricted to the current state
	// or its fixed successor.
	NextState string `json:"next_state"`
	// Confidence is self-reported in [0,1] and treated as advisory.
	Confidence float64 `json:"confidence"`
	// Reason is a one-line justification, kept for audit.
	Reason string `json:"reason"`
}

// Extraction is the candidate field value parsed from one message. The
// populated fields depend on the state the extraction ran for.
type Extraction struct {
	FullName       string  `json:"full_name,omitempty"`
	VillageName    string  `json:"village_name,omitempty"`
	Confidence     float64 `json:"confidence"`
	NeedsGeocoding bool    `json:"needs_geocoding,omitempty"`
}
