package rules

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/reactstore/value"
)

// Kind is a rule's dispatch category.
type Kind string

const (
	KindMutable Kind = "mutable"
	KindAsync   Kind = "async"
	KindPlain   Kind = "plain"
)

// Rule is a compiled rule definition. Expressions stay in the program's CUE
// value; Rule holds only the static parts.
type Rule struct {
	Key     string
	Kind    Kind
	Watch   []string
	Init    bool
	Seed    value.Object
	Message string
}

// CompileError is a rule compilation failure with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileRule parses one entry of the rules struct. The rule key is taken
// from the value's path label.
func CompileRule(v cue.Value) (Rule, error) {
	if err := v.Err(); err != nil {
		return Rule{}, formatCUEError(err)
	}

	var r Rule
	sels := v.Path().Selectors()
	if len(sels) > 0 {
		r.Key = labelName(sels[len(sels)-1])
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return Rule{}, &CompileError{Field: "kind", Message: "kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return Rule{}, formatCUEError(err)
	}
	r.Kind = Kind(kind)

	switch r.Kind {
	case KindMutable, KindAsync:
		if !v.LookupPath(cue.ParsePath("emit")).Exists() {
			return Rule{}, &CompileError{
				Field:   "emit",
				Message: fmt.Sprintf("%s rule %s needs an emit expression", r.Kind, r.Key),
				Pos:     v.Pos(),
			}
		}
	case KindPlain:
		if !v.LookupPath(cue.ParsePath("fail_when")).Exists() {
			return Rule{}, &CompileError{
				Field:   "fail_when",
				Message: fmt.Sprintf("plain rule %s needs a fail_when expression", r.Key),
				Pos:     v.Pos(),
			}
		}
	default:
		return Rule{}, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown kind %q (want mutable, async or plain)", kind),
			Pos:     kindVal.Pos(),
		}
	}

	if r.Watch, err = parseWatch(v); err != nil {
		return Rule{}, err
	}

	if initVal := v.LookupPath(cue.ParsePath("init")); initVal.Exists() {
		if r.Init, err = initVal.Bool(); err != nil {
			return Rule{}, formatCUEError(err)
		}
		if r.Init && r.Kind != KindMutable {
			return Rule{}, &CompileError{Field: "init", Message: "init is only valid on mutable rules", Pos: initVal.Pos()}
		}
	}

	if seedVal := v.LookupPath(cue.ParsePath("seed")); seedVal.Exists() {
		if r.Seed, err = decodeObject(seedVal, "seed"); err != nil {
			return Rule{}, err
		}
	}

	r.Message = "rule " + r.Key + " failed"
	if msgVal := v.LookupPath(cue.ParsePath("message")); msgVal.Exists() {
		if r.Message, err = msgVal.String(); err != nil {
			return Rule{}, formatCUEError(err)
		}
	}

	return r, nil
}

// labelName returns a field label without CUE quoting ("a-b" -> a-b).
func labelName(sel cue.Selector) string {
	name := sel.String()
	if unquoted, err := strconv.Unquote(name); err == nil {
		return unquoted
	}
	return name
}

func parseWatch(v cue.Value) ([]string, error) {
	watchVal := v.LookupPath(cue.ParsePath("watch"))
	if !watchVal.Exists() {
		return nil, nil
	}

	iter, err := watchVal.List()
	if err != nil {
		return nil, &CompileError{Field: "watch", Message: "watch must be a list of paths", Pos: watchVal.Pos()}
	}

	var paths []string
	for iter.Next() {
		p, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if p == "" {
			return nil, &CompileError{Field: "watch", Message: "empty watch path", Pos: iter.Value().Pos()}
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// decodeObject decodes a concrete CUE struct into the state shape.
func decodeObject(v cue.Value, field string) (value.Object, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	var raw map[string]any
	if err := v.Decode(&raw); err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	obj, err := value.NormalizeObject(raw)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return obj, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
