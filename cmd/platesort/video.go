//go:build !gocv

package main

import (
	"errors"

	"github.com/banshee-data/platesort/internal/camera"
)

func openVideo(string) (camera.FrameSource, func(), error) {
	return nil, nil, errors.New("-camera-video needs a build with -tags gocv")
}
