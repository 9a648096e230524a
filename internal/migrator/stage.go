package migrator

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage is the last stage an item reached. A failed item carries the stage it
// was trying to reach.
type Stage int

const (
	StageDiscovered Stage = iota
	StageValidated
	StageDownloaded
	StageReuploaded
	StageRegistered
	StageRecorded
)

var stageNames = map[Stage]string{
	StageDiscovered: "Discovered",
	StageValidated:  "Validated",
	StageDownloaded: "Downloaded",
	StageReuploaded: "Reuploaded",
	StageRegistered: "Registered",
	StageRecorded:   "Recorded",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

var (
	ErrValidation   = errors.New("validation failure")
	ErrDownload     = errors.New("download failure")
	ErrUpload       = errors.New("upload failure")
	ErrRegistration = errors.New("registration failure")
	ErrRecord       = errors.New("record failure")
)

func (s Stage) kind() error {
	switch s {
	case StageValidated:
		return ErrValidation
	case StageDownloaded:
		return ErrDownload
	case StageReuploaded:
		return ErrUpload
	case StageRegistered:
		return ErrRegistration
	case StageRecorded:
		return ErrRecord
	default:
		return nil
	}
}

// StageError ties a failure to the item url and the stage it failed to reach.
// errors.Is matches both the stage kind (ErrDownload, ...) and the cause.
type StageError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s of %s: %v", e.Stage.kind(), e.URL, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	kind := e.Stage.kind()
	return kind != nil && target == kind
}

// State renders the terminal state of an item, e.g. "Recorded" or "Failed@Validated".
func State(stage Stage, err error) string {
	if err != nil {
		return "Failed@" + stage.String()
	}
	return stage.String()
}
