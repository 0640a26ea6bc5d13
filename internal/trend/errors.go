package trend

import (
	"errors"
	"fmt"
)

var (
	// ErrClusteringEmpty means no theme could be formed from the fetched content.
	ErrClusteringEmpty = errors.New("no themes could be formed from fetched content")

	// ErrAllSourcesFailed means every configured source failed in one build.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrReportUnavailable is the only error BuildTrendReport returns: there
	// is no cached report and the current build failed.
	ErrReportUnavailable = errors.New("trend report unavailable")
)

// SourceFetchError is a failure scoped to a single source.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// SynthesisError is a failure scoped to one theme and one generation stage
// ("copy" or "concepts").
type SynthesisError struct {
	Theme string
	Stage string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s for %q: %v", e.Stage, e.Theme, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
