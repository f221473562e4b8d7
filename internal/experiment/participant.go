package experiment

import "time"

// UserAttributes are the targeting attributes a caller passes when
// asking for an assignment. All fields are optional.
type UserAttributes struct {
	Device      string   `json:"device,omitempty"`
	Country     string   `json:"country,omitempty"`
	Segments    []string `json:"segments,omitempty"`
	IsReturning bool     `json:"is_returning,omitempty"`
}

// EventPayload carries the numeric measurements attached to an event.
type EventPayload struct {
	Revenue    float64 `json:"revenue,omitempty"`
	TimeOnPage float64 `json:"time_on_page,omitempty"`
}

// Event is one tracked interaction by an assigned participant. Events
// are append-only; the variation id is pinned at record time.
type Event struct {
	Type        string       `json:"type"`
	Payload     EventPayload `json:"payload"`
	Timestamp   time.Time    `json:"timestamp"`
	VariationID string       `json:"variation_id"`
}

// Assignment is the participant record for one (experiment, user)
// pair. There is at most one per pair; repeated assignment calls
// return the existing record unchanged.
type Assignment struct {
	UserID        string         `json:"user_id"`
	ExperimentID  string         `json:"experiment_id"`
	VariationID   string         `json:"variation_id"`
	VariationName string         `json:"variation_name"`
	AssignedAt    time.Time      `json:"assigned_at"`
	Attributes    UserAttributes `json:"attributes"`
	Events        []Event        `json:"events,omitempty"`
}

// StatisticalResult is the outcome of one inference pass. It is always
// replaced as a whole, never patched field by field. Significant is
// decided on unrounded values; the exported numbers are rounded for
// presentation stability (confidence, lift and z to 2 decimals, p to 4).
type StatisticalResult struct {
	ZScore      float64   `json:"z_score"`
	PValue      float64   `json:"p_value"`
	Confidence  float64   `json:"confidence"`
	Significant bool      `json:"significant"`
	LiftPercent float64   `json:"lift_percent"`
	ControlID   string    `json:"control_id"`
	VariantID   string    `json:"variant_id"`
	ComputedAt  time.Time `json:"computed_at"`
}
