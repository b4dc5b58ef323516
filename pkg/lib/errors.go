package lib

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrPeerExists is returned when starting a peer id that is already registered.
	ErrPeerExists = fmt.Errorf("peer already running: %w", os.ErrExist)
	// ErrPeerNotFound is returned for peer ids that are not registered.
	ErrPeerNotFound = fmt.Errorf("peer not found: %w", os.ErrNotExist)
	// ErrShuttingDown is returned for requests that arrive after the supervisor stopped serving.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)
