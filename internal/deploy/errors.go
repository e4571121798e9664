package deploy

import (
	"errors"
	"fmt"
)

// State is a step of the deploy state machine.
type State string

const (
	StateValidating           State = "validating"
	StateCheckingDependencies State = "checking_dependencies"
	StateResolvingCompose     State = "resolving_compose"
	StateTearingDown          State = "tearing_down"
	StateSanitizingCompose    State = "sanitizing_compose"
	StateBuildingEnvironment  State = "building_environment"
	StateSeedingData          State = "seeding_data"
	StatePulling              State = "pulling"
	StateStartingServices     State = "starting_services"
	StateFinalizing           State = "finalizing"
	StateRecording            State = "recording"
	StateDone                 State = "done"
)

type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindDependency  ErrorKind = "dependency"
	KindResolution  ErrorKind = "resolution"
	KindProcess     ErrorKind = "process"
	KindPersistence ErrorKind = "persistence"
)

// ErrDeployInProgress is returned when a deploy for the same app is running.
var ErrDeployInProgress = errors.New("deployment already in progress")

// StageError is the failure of one deploy state. Msg, when set, replaces
// the wrapped error's text as the caller-facing message.
type StageError struct {
	State State
	Kind  ErrorKind
	Msg   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.State) + " failed"
}

func (e *StageError) Unwrap() error { return e.Err }

// progressMessage is the terminal message shown to observers.
func (e *StageError) progressMessage() string {
	switch e.State {
	case StatePulling:
		return "Image pull failed: " + e.Error()
	case StateStartingServices:
		return "Failed to start services: " + e.Error()
	case StateSeedingData:
		return "Failed to prepare app data: " + e.Error()
	case StateRecording:
		return "Failed to save installation: " + e.Error()
	}
	return e.Error()
}

func stageErr(state State, kind ErrorKind, err error) *StageError {
	return &StageError{State: state, Kind: kind, Err: err}
}

func stageMsg(state State, kind ErrorKind, format string, args ...any) *StageError {
	return &StageError{State: state, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
