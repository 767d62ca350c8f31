package reprocess

import "errors"

var (
	// ErrRunnerRequired is returned when no pipeline is provided.
	ErrRunnerRequired = errors.New("reprocess runner required")

	// ErrRepositoryRequired is returned when no document repository is provided.
	ErrRepositoryRequired = errors.New("document repository required")
)
