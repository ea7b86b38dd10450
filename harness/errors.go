package harness

import (
	"fmt"
	"strings"
)

// Phase names the step of a run an error came from.
type Phase string

const (
	PhaseCompile Phase = "compile"
	PhaseSeed    Phase = "seed"
	PhaseEncode  Phase = "encode"
	PhaseDeploy  Phase = "deploy"
	PhaseCall    Phase = "call"
	PhaseQuery   Phase = "query"
	PhaseInspect Phase = "inspect"
	PhaseBench   Phase = "bench"
)

// Error carries what is needed to reproduce a fatal failure.
type Error struct {
	Phase    Phase
	Contract string
	Function string
	Err      error
}

func (e *Error) Error() string {
	parts := []string{string(e.Phase)}
	if e.Contract != "" {
		parts = append(parts, e.Contract)
	}
	if e.Function != "" {
		parts = append(parts, e.Function)
	}
	return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(phase Phase, contract, function string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Phase: phase, Contract: contract, Function: function, Err: err}
}
