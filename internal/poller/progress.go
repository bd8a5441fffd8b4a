package poller

import (
	"fmt"
	"math"
	"strings"
	"time"

	"narrator/internal/jobs"
	"narrator/internal/workflow"
)

// Failure is the structured record returned for a failed run.
type Failure struct {
	Step  int    `json:"step"`
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// Message renders the failure the way users see it.
func (f Failure) Message() string {
	msg := fmt.Sprintf("Step %d failed: %s", f.Step, f.Error)
	if f.Hint != "" {
		msg += "\n" + f.Hint
	}
	return msg
}

// Update is what the caller sees on every poll.
type Update struct {
	Snapshot jobs.Snapshot `json:"job"`
	Progress string        `json:"progress"`
	ETA      string        `json:"eta,omitempty"`
	Elapsed  float64       `json:"elapsed_s"`
	Final    bool          `json:"final"`
	Failure  *Failure      `json:"failure,omitempty"`
}

// Describe builds the Update for snap at now.
func Describe(snap jobs.Snapshot, now time.Time) Update {
	u := Update{
		Snapshot: snap,
		Elapsed:  math.Round(snap.Elapsed(now).Seconds()*10) / 10,
		Final:    snap.Terminal(),
	}
	switch snap.Status {
	case jobs.StatusRunning:
		u.Progress = fmt.Sprintf("[%d/%d] %s", snap.CurrentStep, snap.TotalSteps, snap.StepLabel)
		u.ETA = FormatETA(snap)
	case jobs.StatusCompleted:
		u.Progress = "Done"
	case jobs.StatusCancelled:
		u.Progress = "Cancelled"
	case jobs.StatusFailed:
		step := snap.CurrentStep
		if snap.FailedStep != nil {
			step = *snap.FailedStep
		}
		u.Failure = &Failure{Step: step, Error: snap.Error, Hint: workflow.Hint(snap.Error)}
		u.Progress = u.Failure.Message()
	default:
		u.Progress = strings.TrimSpace(string(snap.Status))
	}
	return u
}

// Remaining estimates the time left from the mean of completed step times.
// ok is false until a step has completed.
func Remaining(snap jobs.Snapshot) (time.Duration, bool) {
	if len(snap.StepTimes) == 0 {
		return 0, false
	}
	var sum float64
	for _, t := range snap.StepTimes {
		sum += t
	}
	mean := sum / float64(len(snap.StepTimes))
	left := max(snap.TotalSteps-snap.CurrentStep, 0)
	return time.Duration(float64(left) * mean * float64(time.Second)), true
}

// FormatETA renders Remaining as "ETA: ~42s", "ETA: ~3m 5s" or
// "ETA: estimating...".
func FormatETA(snap jobs.Snapshot) string {
	remaining, ok := Remaining(snap)
	if !ok {
		return "ETA: estimating..."
	}
	secs := int(remaining.Seconds())
	if secs < 60 {
		return fmt.Sprintf("ETA: ~%ds", secs)
	}
	return fmt.Sprintf("ETA: ~%dm %ds", secs/60, secs%60)
}
