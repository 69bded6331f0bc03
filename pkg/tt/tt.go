// Package tt supports table-driven tests with little boilerplate.
package tt

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Table represents a test table.
type Table []*Case

// Case represents a test case. It is created by the Args function, and
// offers setters that augment and return itself, so calls can be chained
// like Args(...).Rets(...).
type Case struct {
	args []any
	rets []any
}

// Args returns a new Case with the given arguments.
func Args(args ...any) *Case {
	return &Case{args: args}
}

// Rets modifies the test case so that it requires the return values to match
// the given values, and returns the receiver. An argument may implement the
// Matcher interface, in which case its Match method decides; otherwise
// go-cmp with exported-field comparison decides.
func (c *Case) Rets(rets ...any) *Case {
	c.rets = rets
	return c
}

// Matcher wraps the Match method.
type Matcher interface {
	// Match reports whether an actual return value is considered a match.
	Match(actual any) bool
}

// Any is a Matcher that matches any value.
var Any Matcher = anyMatcher{}

type anyMatcher struct{}

func (anyMatcher) Match(any) bool { return true }

// T is the interface for accessing testing.T.
type T interface {
	Helper()
	Errorf(format string, args ...any)
}

// Test tests a function against the table, formatting mismatches with a
// go-cmp diff.
func Test(t T, name string, fn any, tests Table) {
	t.Helper()
	for _, test := range tests {
		rets := call(fn, test.args)
		for i, want := range test.rets {
			if m, ok := want.(Matcher); ok {
				if !m.Match(rets[i]) {
					t.Errorf("%s(%v) ret %d = %v, want match", name, test.args, i, rets[i])
				}
				continue
			}
			if diff := cmp.Diff(want, rets[i], cmpopts.EquateErrors()); diff != "" {
				t.Errorf("%s(%v) ret %d (-want +got):\n%s", name, test.args, i, diff)
			}
		}
	}
}

func call(fn any, args []any) []any {
	argsReflect := make([]reflect.Value, len(args))
	fnType := reflect.TypeOf(fn)
	for i, arg := range args {
		if arg == nil {
			argsReflect[i] = reflect.Zero(fnType.In(i))
		} else {
			argsReflect[i] = reflect.ValueOf(arg)
		}
	}
	retsReflect := reflect.ValueOf(fn).Call(argsReflect)
	rets := make([]any, len(retsReflect))
	for i, ret := range retsReflect {
		rets[i] = ret.Interface()
	}
	return rets
}

// RetsString formats return values for error messages. A single value is
// formatted bare; multiple values are parenthesized and comma-delimited.
func RetsString(rets ...any) string {
	if len(rets) == 1 {
		return fmt.Sprint(rets[0])
	}
	var sb strings.Builder
	sb.WriteString("(")
	for i, ret := range rets {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, ret)
	}
	sb.WriteString(")")
	return sb.String()
}
