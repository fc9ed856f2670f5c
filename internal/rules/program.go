package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/value"
)

// Program is a compiled rule set.
type Program struct {
	// Initial is the decoded `initial` struct, or nil when absent.
	Initial value.Object
	// Rules in declaration order.
	Rules []Rule

	// cue.Value evaluation is serialized; async rules evaluate on their own
	// goroutines.
	mu   sync.Mutex
	root cue.Value
}

// Compile compiles rule source. filename is used in error positions.
func Compile(src []byte, filename string) (*Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return build(v)
}

// LoadFile compiles a single .cue rule file.
func LoadFile(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Compile(src, path)
}

// LoadDir loads the CUE package in dir, unifying all of its files.
func LoadDir(dir string) (*Program, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load rules %s: no CUE instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load rules %s: %w", dir, inst.Err)
	}

	ctx := cuecontext.New()
	return build(ctx.BuildInstance(inst))
}

func build(v cue.Value) (*Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if !v.LookupPath(cue.ParsePath("state")).Exists() {
		return nil, &CompileError{
			Field:   "state",
			Message: "rule files must declare `state: _`",
			Pos:     v.Pos(),
		}
	}

	p := &Program{root: v}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		initial, err := decodeObject(initVal, "initial")
		if err != nil {
			return nil, err
		}
		p.Initial = initial
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return p, nil
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		r, err := CompileRule(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("rules.%s: %w", iter.Selector(), err)
		}
		p.Rules = append(p.Rules, r)
	}
	return p, nil
}

// Observers returns a fresh observer per rule, in declaration order.
func (p *Program) Observers() []observer.Observer {
	out := make([]observer.Observer, len(p.Rules))
	for i, r := range p.Rules {
		out[i] = newRuleObserver(p, r)
	}
	return out
}

// Emit evaluates the emit expression of rule key against state.
func (p *Program) Emit(key string, state value.Object) (value.Object, error) {
	v, err := p.eval(key, "emit", state)
	if err != nil {
		return nil, err
	}
	return decodeObject(v, "emit")
}

// FailWhen evaluates the fail_when expression of rule key against state.
func (p *Program) FailWhen(key string, state value.Object) (bool, error) {
	v, err := p.eval(key, "fail_when", state)
	if err != nil {
		return false, err
	}
	b, err := v.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func (p *Program) eval(key, field string, state value.Object) (cue.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filled := p.root.FillPath(cue.ParsePath("state"), state)
	v := filled.LookupPath(cue.MakePath(cue.Str("rules"), cue.Str(key), cue.Str(field)))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("rule %s has no %s", key, field)
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// ruleObserver runs one compiled rule.
type ruleObserver struct {
	observer.Base
	prog *Program
	rule Rule
}

func newRuleObserver(p *Program, r Rule) *ruleObserver {
	o := &ruleObserver{prog: p, rule: r}
	o.SetKey(r.Key)

	selectors := value.SelectAll(r.Watch...)

	switch r.Kind {
	case KindMutable:
		o.RegisterMutable(o.emit, selectors...)
		if r.Init {
			o.RegisterMutableInitializer(o.emit)
		}
	case KindAsync:
		o.RegisterAsync(o.emitLater, selectors...)
	case KindPlain:
		o.RegisterPlain(o.check, selectors...)
	}

	if r.Seed != nil {
		seed := r.Seed
		o.SetInitialState(func(value.Object) value.Object { return seed })
	}
	return o
}

func (o *ruleObserver) emit(state, _ value.Object) (value.Object, error) {
	return o.prog.Emit(o.rule.Key, state)
}

func (o *ruleObserver) emitLater(ctx context.Context, state, _ value.Object) error {
	delta, err := o.prog.Emit(o.rule.Key, state)
	if err != nil {
		return err
	}
	return o.Update(ctx, delta)
}

func (o *ruleObserver) check(state, _ value.Object) error {
	fail, err := o.prog.FailWhen(o.rule.Key, state)
	if err != nil {
		return err
	}
	if fail {
		return errors.New(o.rule.Message)
	}
	return nil
}
