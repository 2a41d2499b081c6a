//go:build gocv

package main

import "github.com/banshee-data/platesort/internal/camera"

func openVideo(pipeline string) (camera.FrameSource, func(), error) {
	src, err := camera.OpenVideoSource(pipeline, 4)
	if err != nil {
		return nil, nil, err
	}
	return src, func() { src.Close() }, nil
}
