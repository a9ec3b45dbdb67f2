package dto

// TransitionRow is one transition in a replace payload.
type TransitionRow struct {
	FromStatusID       string  `json:"fromStatusId"`
	ActionCode         string  `json:"actionCode"`
	ToStatusID         string  `json:"toStatusId"`
	RequiredPermission *string `json:"requiredPermission,omitempty"`
	Enabled            bool    `json:"enabled"`
}

// ReplaceTransitionsRequest atomically replaces the whole transition set for
// one request type. The old set is never partially visible.
type ReplaceTransitionsRequest struct {
	Transitions []TransitionRow `json:"transitions"`
}
