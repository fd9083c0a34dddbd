package main

import (
	"github.com/cyclopcam/vidannotate/pkg/batch"
	"github.com/cyclopcam/vidannotate/pkg/videox"
)

// videoMedia opens real video files with videox
type videoMedia struct{}

type videoReader struct {
	*videox.Reader
}

func (r videoReader) Info() batch.SourceInfo {
	info := r.Reader.Info()
	return batch.SourceInfo{
		Width:      info.Width,
		Height:     info.Height,
		FPS:        info.FPS,
		FrameCount: info.FrameCount,
	}
}

func (videoMedia) OpenReader(path string) (batch.VideoReader, error) {
	r, err := videox.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return videoReader{r}, nil
}

func (videoMedia) OpenWriter(path, codec string, width, height int, fps float64) (batch.VideoWriter, error) {
	w, err := videox.OpenWriter(path, codec, width, height, fps)
	if err != nil {
		return nil, err
	}
	return w, nil
}
