package worker

import "errors"

// ErrAlreadyRunning — Run уже выполняется.
var ErrAlreadyRunning = errors.New("worker already running")
