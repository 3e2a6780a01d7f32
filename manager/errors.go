package manager

import (
	"errors"
	"fmt"
	"time"
)

// Routing errors surface synchronously to the caller of the manager API.
var (
	ErrUnknownWorker    = errors.New("unknown worker")
	ErrDuplicateWorker  = errors.New("duplicate worker")
	ErrWorkerErrored    = errors.New("worker is in errored state")
	ErrWorkerTerminated = errors.New("worker terminated")
)

// A TimeoutError reports that a request received no correlated response
// within its configured timeout. It is a latency fault, not a protocol
// fault: the worker stays alive and a late response is silently dropped.
type TimeoutError struct {
	WorkerID string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to worker %s timed out after %v",
		e.WorkerID, e.Timeout)
}
