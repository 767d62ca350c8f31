package ingestion

import "github.com/poiesic/kbase/core"

// Result is the response of a processing run.
type Result struct {
	Success         bool    `json:"success"`
	ChunksProcessed int     `json:"chunksProcessed,omitempty"`
	VersionID       core.ID `json:"versionId,omitempty,string"`
	Error           string  `json:"error,omitempty"`

	err error
}

// Err returns the error that failed the run, or nil.
func (r *Result) Err() error {
	return r.err
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
		err:     err,
	}
}
