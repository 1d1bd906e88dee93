package media

import (
	"errors"
	"fmt"
)

// PipelineError is the typed failure of a child-process pipeline: a non-zero
// exit or a broken pipe between the extractor and the transcoder. The
// coordinator uses it to decide between streaming and sequential fallback.
type PipelineError struct {
	Stage  string // "extractor", "transcoder", "pipe"
	Stderr string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("media pipeline %s failed: %v: %s", e.Stage, e.Err, e.Stderr)
	}
	return fmt.Sprintf("media pipeline %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsPipelineError reports whether err is (or wraps) a PipelineError.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
