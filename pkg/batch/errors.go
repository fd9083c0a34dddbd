package batch

import (
	"errors"
	"fmt"
)

// ErrNoFrames means a video opened, but not even its first frame could be decoded
var ErrNoFrames = errors.New("No decodable frames")

// AbortError is returned by Run when Config.AbortOnStreamError is true, and a video fails mid-stream
type AbortError struct {
	Input string
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("Batch aborted by %v: %v", e.Input, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
