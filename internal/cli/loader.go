package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/reactstore/internal/rules"
)

// Error codes.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeInput      = "E002" // Unreadable or malformed input file
	ErrCodeJournal    = "E003" // Journal open/read error
	ErrCodeLoadFailed = "E004" // CUE load or evaluation failed
	ErrCodeNotFound   = "E005" // Path not found
	ErrCodeConfig     = "E006" // Invalid store config
	ErrCodeUpdate     = "E007" // An update failed

	ErrCodeRuleKind    = "E101" // Missing or unknown kind
	ErrCodeRuleWatch   = "E102" // Invalid watch list
	ErrCodeRuleExpr    = "E103" // Missing or non-concrete emit/fail_when
	ErrCodeRuleInit    = "E104" // init on a non-mutable rule
	ErrCodeRuleState   = "E105" // Invalid seed or initial state
	ErrCodeRuleMissing = "E106" // No `state: _` declaration
)

// LoadError is a rules loading failure with a CLI error code.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Line returns the source line of the error, or 0 when unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadRules compiles a rules file, or every CUE file of a directory as one
// package.
func LoadRules(path string) (*rules.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules not found: %s", path), Err: err}
	}

	var prog *rules.Program
	if info.IsDir() {
		files, ferr := FindCUEFiles(path)
		if ferr != nil {
			return nil, &LoadError{Code: ErrCodeInput, Message: fmt.Sprintf("error scanning directory: %v", ferr), Err: ferr}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		prog, err = rules.LoadDir(path)
	} else {
		prog, err = rules.LoadFile(path)
	}
	if err != nil {
		return nil, convertCompileError(err)
	}
	return prog, nil
}

// FindCUEFiles lists the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func convertCompileError(err error) *LoadError {
	var cErr *rules.CompileError
	if errors.As(err, &cErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(cErr.Field),
			Message: cErr.Message,
			Pos:     cErr.Pos,
			Err:     err,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Err: err}
}

// MapFieldToErrorCode maps a rule compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "kind":
		return ErrCodeRuleKind
	case "watch":
		return ErrCodeRuleWatch
	case "emit", "fail_when", "message":
		return ErrCodeRuleExpr
	case "init":
		return ErrCodeRuleInit
	case "seed", "initial":
		return ErrCodeRuleState
	case "state":
		return ErrCodeRuleMissing
	default:
		return ErrCodeLoadFailed
	}
}

// convertToLoadError returns err as a *LoadError, wrapping unknown errors
// with the generic code.
func convertToLoadError(err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Err: err}
}
