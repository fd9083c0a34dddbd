// Package fourcc maps output containers to the FourCC video codecs that OpenCV can write.
package fourcc

import (
	"fmt"
	"strings"
)

// DefaultCodec is the FourCC that we encode all outputs with, unless told otherwise.
// mp4v (MPEG-4 Part 2) is available in every OpenCV build, and plays back in an .mp4 container.
const DefaultCodec = "mp4v"

// ForExtension returns a FourCC that OpenCV can write into a container with the given
// file extension (eg ".avi"). Unknown extensions get DefaultCodec.
func ForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4", ".mov", ".m4v":
		return "mp4v"
	case ".avi":
		return "MJPG"
	case ".mkv":
		return "XVID"
	case ".wmv":
		return "WMV2"
	default:
		return DefaultCodec
	}
}

// Parse validates a FourCC codec string
func Parse(codec string) (string, error) {
	if len(codec) != 4 {
		return "", fmt.Errorf("Invalid codec '%v': a FourCC must be exactly 4 characters", codec)
	}
	for _, c := range codec {
		if c < 0x20 || c > 0x7e {
			return "", fmt.Errorf("Invalid codec '%v': non-printable character", codec)
		}
	}
	return codec, nil
}
