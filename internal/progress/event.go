package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStarted      Stage = "run_started"
	StageRunFinished     Stage = "run_finished"
	StageBookmarkChecked Stage = "bookmark_checked"
)

// StatusClass is a coarse HTTP response grouping. StatusNone marks checks
// that produced no status code at all, such as an unreachable host.
type StatusClass string

// Supported status classes tracked for bookmark checks.
const (
	Status2xx  StatusClass = "2xx"
	Status3xx  StatusClass = "3xx"
	Status4xx  StatusClass = "4xx"
	Status5xx  StatusClass = "5xx"
	StatusNone StatusClass = "none"
)

// Event captures a single milestone of an enrichment run.
type Event struct {
	// RunID identifies the enclosing run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which run or bookmark milestone occurred.
	Stage Stage
	// URL is the bookmark href for bookmark_checked events.
	URL string
	// Method records how liveness was established (fetch, render, none).
	Method string
	// StatusClass groups the final HTTP status (2xx, 3xx, ... or none).
	StatusClass StatusClass
	// Live reports whether the bookmark answered.
	Live bool
	// Dur captures check latency or total run wall time.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. cancellation text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStarted, StageRunFinished:
	case StageBookmarkChecked:
		if e.URL == "" {
			return errors.New("bookmark check requires url")
		}
		if e.Method == "" {
			return errors.New("bookmark check requires method")
		}
		if e.StatusClass == "" {
			return errors.New("bookmark check requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for bookmark checks. Codes outside
// the conventional range, including zero, map to StatusNone.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusNone
	}
}
