package orchestration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("turn queue full")
	ErrFrameTooLarge = errors.New("inbound frame too large")
)

// ConfigurationError reports provider credentials that are not configured.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required credentials: " + strings.Join(e.Missing, ", ")
}

type Step string

const (
	StepTranscription Step = "transcription"
	StepRetrieval     Step = "retrieval"
	StepGeneration    Step = "generation"
	StepSynthesis     Step = "synthesis"
)

// PipelineStepError is a failed turn. It never affects the session.
type PipelineStepError struct {
	Step Step
	Err  error
}

func (e *PipelineStepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *PipelineStepError) Unwrap() error { return e.Err }

// message is what the caller is told in the error frame. Provider details
// stay in the logs.
func (e *PipelineStepError) message() string {
	return fmt.Sprintf("%s failed", e.Step)
}
