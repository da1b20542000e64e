package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/thisislance98/claudia/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out
	detail := func(key string) interface{} {
		if e, ok := err.(*errors.Error); ok && e.Details != nil {
			return e.Details[key]
		}
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeDaemonUnavailable:
		fmt.Fprintf(out, "%s The claudia daemon is not running (socket %v).\n", errorMark, detail("socket"))
		fmt.Fprintf(out, "Start it with 'claudia daemon start'.\n")

	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "%s Configuration file %v not found.\n", errorMark, detail("path"))

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(out, "%s %v\n", errorMark, err)
		fmt.Fprintf(out, "Check the file with 'claudia config validate'.\n")

	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(out, "%s Session '%v' not found.\n", errorMark, detail("session"))
		fmt.Fprintf(out, "Run 'claudia session list' to see known sessions.\n")

	case errors.ErrCodeWorkspaceNotFound:
		fmt.Fprintf(out, "%s Workspace '%v' is not registered.\n", errorMark, detail("workspace"))
		fmt.Fprintf(out, "Register it with 'claudia workspace add <id> <path>'.\n")

	case errors.ErrCodeInvalidState:
		fmt.Fprintf(out, "%s %v\n", errorMark, err)

	case errors.ErrCodeSpawnFailed:
		fmt.Fprintf(out, "%s %v\n", errorMark, err)
		fmt.Fprintf(out, "Check agent.command in your configuration.\n")

	default:
		fmt.Fprintf(out, "%s Error: %v\n", errorMark, err)
	}

	if h.Verbose {
		if e, ok := err.(*errors.Error); ok {
			fmt.Fprintf(out, "\nError details:\n%s\n", e.ToJSON())
		}
	}
	return err
}
