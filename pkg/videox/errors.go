package videox

import "errors"

// ErrOpen is returned (wrapped) when a video file cannot be opened for reading or writing
var ErrOpen = errors.New("Failed to open video")

// ErrWrite is returned (wrapped) when a frame cannot be appended to an output video
var ErrWrite = errors.New("Failed to write video frame")

// ErrClosed is returned when a Writer is used after Close
var ErrClosed = errors.New("Video is closed")
