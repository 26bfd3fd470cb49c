package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ahmadzakiakmal/panelchain/lifecycle"
	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation was rejected
	ExitCommandError = 2 // bad flags, configuration or infrastructure
)

// ExitError carries the exit code a command should terminate with
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// GetExitCode extracts the exit code from an error. Coordinator rejections
// exit with ExitFailure, anything else with ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if k := lifecycle.KindOf(err); k != lifecycle.KindInternal {
		return ExitFailure
	}
	return ExitCommandError
}

// response is the envelope every command prints
type response struct {
	Status string      `json:"status" yaml:"status"`
	Data   interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *errorBody  `json:"error,omitempty" yaml:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// printer writes responses in the selected format
type printer struct {
	format string
	w      io.Writer
}

func (p printer) success(data interface{}) error {
	return p.write(response{Status: "ok", Data: data})
}

func (p printer) failure(err error) error {
	return p.write(response{Status: "error", Error: &errorBody{
		Kind:    string(lifecycle.KindOf(err)),
		Message: err.Error(),
	}})
}

func (p printer) write(r response) error {
	switch p.format {
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(r)); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}

// toPlain round-trips v through JSON so the yaml output uses the same field
// names and value encodings as the json output.
func toPlain(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
