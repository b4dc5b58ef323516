package lib

import (
	"io"
	"sync"

	"github.com/google/uuid"
)

// NewID generates a UUID version 4 string (RFC 4122)
func NewID() string {
	return uuid.NewString()
}

// LogWriter is the destination of every package logger. It discards until EnableDebugLog is called.
var LogWriter io.Writer = &switchWriter{w: io.Discard}

type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// EnableDebugLog routes package loggers to w. Passing nil silences them again.
func EnableDebugLog(w io.Writer) {
	sw := LogWriter.(*switchWriter)
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	sw.w = w
}
