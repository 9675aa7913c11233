package derive

// Countdown is the remaining time of a timed task.
type Countdown struct {
	Remaining int64 // seconds, never negative
	Ready     bool
	Progress  float64 // 0..1
}

// NewCountdown derives a countdown for a task that finishes at finish and lasts total seconds.
func NewCountdown(finish, total, now int64) Countdown {
	remaining := max(finish-now, 0)
	c := Countdown{Remaining: remaining, Ready: remaining <= 0}
	if total <= 0 {
		if c.Ready {
			c.Progress = 1
		}
		return c
	}
	c.Progress = clamp01(float64(total-remaining) / float64(total))
	return c
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
