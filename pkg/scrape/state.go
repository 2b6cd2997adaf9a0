package scrape

// State is the lifecycle position of a Controller.
type State int

const (
	// Running means pages are still being fetched.
	Running State = iota

	// StoppedByLimit means the configured page limit was reached.
	StoppedByLimit

	// StoppedByEnd means the source ran out of pages.
	StoppedByEnd

	// StoppedByError means a bot challenge or an unparseable page ended the run.
	StoppedByError

	// Interrupted means the run's context was cancelled.
	Interrupted

	// Done means the collected listings were exported.
	Done
)

var stateNames = map[State]string{
	Running:        "running",
	StoppedByLimit: "stopped_by_limit",
	StoppedByEnd:   "stopped_by_end",
	StoppedByError: "stopped_by_error",
	Interrupted:    "interrupted",
	Done:           "done",
}

// String returns the snake_case state name used in logs and metrics.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends the page loop.
func (s State) Terminal() bool {
	return s != Running
}
