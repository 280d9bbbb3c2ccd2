package progress

import "time"

// Statuses
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

var (
	AllStatuses = []string{StatusNotStarted, StatusInProgress, StatusDone}

	Statuses = []Choice{
		{Name: "Not started", Value: StatusNotStarted},
		{Name: "In progress", Value: StatusInProgress},
		{Name: "Done", Value: StatusDone},
	}
)

type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func IsValidStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Progress records the learning status of a user on a material node at a given date.
// Records are kept as history: the latest one is the current status.
type Progress struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	NodeID    string    `json:"node_id"`
	Status    string    `json:"status"`
	Date      time.Time `json:"date"`       // UTC, day precision
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewProgress struct {
	Status string `json:"status" validate:"required,oneof=not_started in_progress done"`
}

type QueryFilter struct {
	MaterialID string `query:"material_id"`
	NodeID     string `query:"node_id"`

	UserID string `query:"-"`
}

// Summary is the progress of a user over the nodes of a material.
type Summary struct {
	MaterialID  string            `json:"material_id"`
	Total       int               `json:"total"`
	Counts      map[string]int    `json:"counts"`   // {status: count}
	Statuses    map[string]string `json:"statuses"` // {nodeID: status}
	PercentDone float64           `json:"percent_done"`
}
