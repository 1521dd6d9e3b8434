package transfer

import (
	"errors"
	"fmt"
)

// ErrUnsupportedDirection is returned for source/target pairings the engine
// does not implement (file→file, database→database). The check runs during
// validation, before any file or connection is touched.
var ErrUnsupportedDirection = errors.New("unsupported transfer direction")

// ErrNoColumns is returned when a file→database job arrives without a
// confirmed column set.
var ErrNoColumns = errors.New("no columns confirmed for transfer")

// StageError tags a failure with the pipeline stage that produced it, so a
// job summary can say where the run died without parsing message text.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
