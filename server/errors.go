package neurales

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is, each typed error below unwraps to one of these.
var (
	ErrLoad             = errors.New("load error")
	ErrConfig           = errors.New("config error")
	ErrEmission         = errors.New("emission error")
	ErrTransientCompute = errors.New("transient compute error")
)

// LoadError is a malformed or unreadable waveform. Fatal, the stream never starts.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load waveform: %s: %v", e.Reason, e.Err)
	}
	return "load waveform: " + e.Reason
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLoad}
	}
	return []error{ErrLoad, e.Err}
}

// ConfigError is an invalid configuration field, rejected at construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// EmissionError is a transport failure while publishing a payload.
// The session ends when one of these is returned.
type EmissionError struct {
	ChunkIndex int
	Err        error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emit chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *EmissionError) Unwrap() []error { return []error{ErrEmission, e.Err} }

// TransientComputeError is a failure scoring a single chunk.
// It is reported as an error payload for that tick and the stream continues.
type TransientComputeError struct {
	ChunkIndex int
	Reason     string
}

func (e *TransientComputeError) Error() string {
	return fmt.Sprintf("chunk %d: %s", e.ChunkIndex, e.Reason)
}

func (e *TransientComputeError) Unwrap() error { return ErrTransientCompute }
