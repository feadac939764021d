// Package jqrun executes jq programs against workflow data, backing the
// jq_transform node kind.
package jqrun

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// Error reports a jq compile or evaluation failure.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "jq_error: " + e.Message }

// Run compiles program and evaluates it against input, returning the first
// emitted value. A program that emits nothing returns (nil, nil); a program
// that emits an error value surfaces it as *Error.
func Run(program string, input any) (any, error) {
	query, err := gojq.Parse(program)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("compile: %s", err)}
	}

	iter := query.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, &Error{Message: err.Error()}
	}
	return v, nil
}
