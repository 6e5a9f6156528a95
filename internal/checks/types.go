package checks

import "fmt"

// Status is the lifecycle state of a check.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Conclusion is the outcome of a completed check.
// The empty Conclusion means "no conclusion yet".
type Conclusion string

const (
	ConclusionNone           Conclusion = ""
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionStale          Conclusion = "stale"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionActionRequired Conclusion = "action_required"
)

// ParseStatus converts an API status string into a [Status].
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusQueued, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown check status %q", s)
}

// ParseConclusion converts an API conclusion string into a [Conclusion].
// An empty string (JSON null) maps to [ConclusionNone].
func ParseConclusion(s string) (Conclusion, error) {
	switch c := Conclusion(s); c {
	case ConclusionNone, ConclusionSuccess, ConclusionFailure, ConclusionNeutral,
		ConclusionSkipped, ConclusionTimedOut, ConclusionStale, ConclusionCancelled,
		ConclusionActionRequired:
		return c, nil
	}
	return "", fmt.Errorf("unknown check conclusion %q", s)
}

// RefCheck is either a legacy commit status context or a check run.
type RefCheck struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Conclusion  Conclusion `json:"conclusion,omitempty"`
}

// Combined is the reduced view of every check reported for a ref.
//
// Conclusion is only set when Status is [StatusCompleted].
// Values are never mutated after construction.
type Combined struct {
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion,omitempty"`
	Checks     []RefCheck `json:"checks"`
}

// StatusItem is a legacy commit status as returned by the combined status API.
type StatusItem struct {
	Context     string
	State       string
	Description string
}

// CombinedRefStatus is the legacy combined status payload.
type CombinedRefStatus struct {
	State    string
	Statuses []StatusItem
}

// CheckRun is a check run as returned by the check runs API.
type CheckRun struct {
	Name        string
	Status      Status
	Conclusion  Conclusion
	OutputTitle string
	SuiteID     int64
}

// CheckRunList is the check runs payload for a ref.
type CheckRunList struct {
	TotalCount int
	CheckRuns  []CheckRun
}
