// Command oratio analyses speech transcripts: rule-based issue detection,
// delivery metrics, optional AI refinement and a coaching plan.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes.
const (
	ExitSuccess  = 0
	ExitError    = 1 // runtime failure
	ExitBadInput = 2 // configuration or input error
)

// InputError marks a failure caused by the user's configuration or input
// rather than by the analysis itself.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oratio:", err)

		var inputErr *InputError
		if errors.As(err, &inputErr) {
			os.Exit(ExitBadInput)
		}
		os.Exit(ExitError)
	}
}
