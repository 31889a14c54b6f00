package domain

// Registration flow states. The flow is a fixed forward-only sequence:
// initial → awaiting_name → awaiting_village → completed.
const (
	StateInitial         = "initial"
	StateAwaitingName    = "awaiting_name"
	StateAwaitingVillage = "awaiting_village"
	StateCompleted       = "completed"
)

// StateSpec describes one node of the registration flow: the field collected
// while in that state and the state that follows a successful collection.
// Modelling the graph as a table keeps gate/merge logic uniform if more
// fields are ever added to the flow.
type StateSpec struct {
	// RequiredField names the citizen field collected in this state
	// ("" when the state collects nothing).
	RequiredField string
	// Next is the successor state ("" for terminal states).
	Next string
	// NeedsGeocoding marks states whose extracted value must pass
	// geographic validation before it is accepted.
	NeedsGeocoding bool
}

// StateGraph is the full registration flow, keyed by state identifier.
var StateGraph = map[string]StateSpec{
	StateInitial:         {Next: StateAwaitingName},
	StateAwaitingName:    {RequiredField: "full_name", Next: StateAwaitingVillage},
	StateAwaitingVillage: {RequiredField: "village_name", Next: StateCompleted, NeedsGeocoding: true},
	StateCompleted:       {},
}

// ValidState reports whether s names a known registration state.
func ValidState(s string) bool {
	_, ok := StateGraph[s]
	return ok
}

// NextState returns the successor of s, or "" when s is terminal or unknown.
func NextState(s string) string {
	return StateGraph[s].Next
}

// IsTerminal reports whether s has no successor in the flow.
func IsTerminal(s string) bool {
	return StateGraph[s].Next == ""
}

// stateOrder fixes the forward ordering of the flow for monotonicity checks.
var stateOrder = map[string]int{
	StateInitial:         0,
	StateAwaitingName:    1,
	StateAwaitingVillage: 2,
	StateCompleted:       3,
}

// Precedes reports whether state a comes strictly before state b in the
// registration sequence. Unknown states never precede anything.
func Precedes(a, b string) bool {
	ia, oka := stateOrder[a]
	ib, okb := stateOrder[b]
	return oka && okb && ia < ib
}
