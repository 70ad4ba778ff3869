package orchestrator

import (
	"errors"
	"strings"
)

var errParameterMismatch = errors.New("orchestrator: parameter mismatch")
var errNoCandidates = errors.New("orchestrator: no tool candidates found")

func isParameterMismatch(err error) bool {
	return errors.Is(err, errParameterMismatch)
}

func isNotRegistered(err error) bool {
	return strings.Contains(err.Error(), "not registered")
}

func isNoCandidates(err error) bool {
	return errors.Is(err, errNoCandidates)
}
