// Package filter compiles user-supplied boolean expressions into predicates
// over an entity's informational fields. Expressions are validated against
// the entity's field whitelist at compile time, then run in a sandboxed
// expression VM with nothing in scope but the candidate's fields.
package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	errs "github.com/tnychn/instascrape/pkg/errors"
)

// Predicate is a compiled filter expression. It is immutable and safe for
// concurrent evaluation.
type Predicate struct {
	expression string
	program    *vm.Program
}

// identifierCollector gathers every bare name referenced by an expression.
type identifierCollector struct {
	names []string
}

func (c *identifierCollector) Visit(node *ast.Node) {
	if ident, ok := (*node).(*ast.IdentifierNode); ok {
		c.names = append(c.names, ident.Value)
	}
}

// Compile validates an expression against an entity's field whitelist and
// compiles it into a reusable predicate. A reference to a name outside the
// whitelist fails with an AttributeError naming the offending identifier;
// this happens before any network activity.
func Compile(expression, entity string, whitelist []string) (*Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty filter expression")
	}

	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	allowed := make(map[string]struct{}, len(whitelist))
	for _, name := range whitelist {
		allowed[name] = struct{}{}
	}
	collector := &identifierCollector{}
	ast.Walk(&tree.Node, collector)
	for _, name := range collector.names {
		if _, ok := allowed[name]; !ok {
			return nil, &errs.AttributeError{Entity: entity, Name: name}
		}
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return &Predicate{expression: expression, program: program}, nil
}

// Evaluate runs the predicate against a candidate's fields. Non-boolean
// results are coerced by truthiness.
func (p *Predicate) Evaluate(fields map[string]interface{}) (bool, error) {
	result, err := expr.Run(p.program, fields)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter expression: %w", err)
	}
	return truthy(result), nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	default:
		return true
	}
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.expression
}
