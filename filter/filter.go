package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// DefaultNotify raises a notification for messages outside the room being looked at.
const DefaultNotify = `Room != CurrentRoom`

// Filter is a compiled boolean expression over Env. The zero value and nil match nothing.
type Filter struct {
	code string
	prog *vm.Program
}

// Compile checks code against Env. An empty code yields a filter that never matches.
func Compile(code string) (*Filter, error) {
	if code == "" {
		return &Filter{}, nil
	}
	prog, err := expr.Compile(code, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("could not compile filter %q: %w", code, err)
	}
	return &Filter{code: code, prog: prog}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.code
}

// Match evaluates the filter. Evaluation errors count as no match.
func (f *Filter) Match(env Env) (bool, error) {
	if f == nil || f.prog == nil {
		return false, nil
	}
	res, err := expr.Run(f.prog, env)
	if err != nil {
		return false, err
	}
	ok, _ := res.(bool)
	return ok, nil
}
