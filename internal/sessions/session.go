package sessions

import "time"

// Session is one logged workout: a total rep count plus the sets it
// was split into. TotalReps comes from the client as-is and is not
// reconciled against the sum of the set reps.
type Session struct {
	ID        int       `json:"id"`
	LogTime   time.Time `json:"log_time"`
	TotalReps int       `json:"total_reps"`
	Sets      []Set     `json:"sets,omitempty"`
}

type Set struct {
	ID              int `json:"id"`
	SessionID       int `json:"session_id"`
	Reps            int `json:"reps"`
	DurationSeconds int `json:"duration_seconds"`
	RestTimeAfter   int `json:"rest_time_after"`
}

// Goals are the fixed rep targets the dashboard compares against.
// Immutable after construction, pass a copy around.
type Goals struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
}

func DefaultGoals() Goals {
	return Goals{
		Daily:   40,
		Weekly:  224,
		Monthly: 652,
	}
}
