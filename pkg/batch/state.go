package batch

// VideoState is the stage that a single video has reached
type VideoState int

const (
	StateDiscovered VideoState = iota
	StateOpened
	StateStreaming
	StateFinalized
	StateTruncated // Finalized, but the reader yielded fewer frames than the container claimed
	StateFailed
	StateSkippedOpenFailure
)

func (s VideoState) String() string {
	switch s {
	case StateDiscovered:
		return "Discovered"
	case StateOpened:
		return "Opened"
	case StateStreaming:
		return "Streaming"
	case StateFinalized:
		return "Finalized"
	case StateTruncated:
		return "Truncated"
	case StateFailed:
		return "Failed"
	case StateSkippedOpenFailure:
		return "SkippedOpenFailure"
	}
	return "Unknown"
}

// Returns true if the video will not change state again
func (s VideoState) IsTerminal() bool {
	switch s {
	case StateFinalized, StateTruncated, StateFailed, StateSkippedOpenFailure:
		return true
	}
	return false
}

// Returns true if the video produced a usable output file
func (s VideoState) HasOutput() bool {
	return s == StateFinalized || s == StateTruncated
}
