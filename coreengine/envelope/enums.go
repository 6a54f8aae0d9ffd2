// Package envelope provides the message that flows between agents.
package envelope

import "fmt"

// Status is the coarse outcome an agent stamps on its output.
type Status string

const (
	// StatusPlanned is set by the planner on success.
	StatusPlanned Status = "planned"
	// StatusCompleted is set by a downstream agent on success.
	StatusCompleted Status = "completed"
	// StatusError marks a failed step.
	StatusError Status = "error"
)

// StatusFromString converts a string to Status.
func StatusFromString(s string) (Status, error) {
	switch Status(s) {
	case StatusPlanned, StatusCompleted, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid envelope status: %q", s)
	}
}

// UnmarshalText rejects unknown statuses. An empty value decodes to "".
func (s *Status) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = ""
		return nil
	}
	parsed, err := StatusFromString(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Processing record statuses.
const (
	RecordRunning = "running"
	RecordSuccess = "success"
	RecordError   = "error"
)
