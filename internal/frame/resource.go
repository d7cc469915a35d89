// Package frame grabs single still frames from a video at a given offset.
package frame

import (
	"context"
	"errors"
)

// ErrNoFrame means nothing could be decoded at the requested position.
var ErrNoFrame = errors.New("no frame decoded")

// ErrClosed is returned by a Handle used after Close.
var ErrClosed = errors.New("video handle closed")

// VideoResource opens videos for frame decoding.
type VideoResource interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// Handle is an open video positioned at a playback offset.
type Handle interface {
	// Seek moves the read position to ms milliseconds from the start.
	Seek(ms int64) error
	// DecodeFrame decodes the frame at the current position as JPEG bytes.
	// It returns ErrNoFrame when the position holds no decodable frame.
	DecodeFrame(ctx context.Context) ([]byte, error)
	Close() error
}
