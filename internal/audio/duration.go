// Package audio computes the playback length of audio files.
package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/wav"
	"gopkg.in/vansante/go-ffprobe.v2"
)

// DurationFunc returns the length of the file at path in seconds.
type DurationFunc func(ctx context.Context, path string) (float64, error)

// WAVDuration reads the length from a RIFF/WAVE header.
func WAVDuration(_ context.Context, path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid wav file", path)
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, err
	}
	return dur.Seconds(), nil
}

// FFProbeDuration asks ffprobe for the container duration. It handles any
// format ffmpeg can read.
func FFProbeDuration(ctx context.Context, path string) (float64, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, err
	}
	if data.Format == nil {
		return 0, fmt.Errorf("ffprobe returned no format for %s", path)
	}
	return data.Format.DurationSeconds, nil
}

// FirstOf tries each function in order and returns the first positive
// duration. The last error is returned when none succeeds.
func FirstOf(fns ...DurationFunc) DurationFunc {
	return func(ctx context.Context, path string) (float64, error) {
		lastErr := fmt.Errorf("no duration function configured")
		for _, fn := range fns {
			secs, err := fn(ctx, path)
			if err == nil && secs > 0 {
				return secs, nil
			}
			if err == nil {
				err = fmt.Errorf("non-positive duration %v for %s", secs, path)
			}
			lastErr = err
		}
		return 0, lastErr
	}
}

// Default is WAV header parsing with an ffprobe fallback.
var Default = FirstOf(WAVDuration, FFProbeDuration)
