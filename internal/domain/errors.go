package domain

import (
	"fmt"
	"strings"
)

// FallbackReply replaces the answer of any failed query.
const FallbackReply = "Sorry, there was an error processing your request."

// ConfigurationError reports required settings that are absent or unusable.
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 && e.Err != nil {
		return "invalid configuration: " + e.Err.Error()
	}
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConnectionError reports that a remote collaborator could not be reached or validated during bootstrap.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Stage names a step of the answer chain.
type Stage string

const (
	StageBootstrap Stage = "bootstrap"
	StageEmbed     Stage = "embed"
	StageRetrieve  Stage = "retrieve"
	StageComplete  Stage = "complete"
)

// UpstreamError reports a failure of a single query's embed, retrieve or complete call.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
