package admission

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/meshtower/tower/internal/xds/node"
)

// RulesPolicy evaluates operator-defined deny rules written in CEL.
// Expressions see three variables: service (string), dependencies
// (list of strings, sorted), and ads (bool). A rule that evaluates to
// true blocks the request.
//
// Rules compile when the policy is built, so a broken expression is
// rejected at startup instead of surfacing while serving.
type RulesPolicy struct {
	rules []compiledRule
}

type compiledRule struct {
	name    string
	program cel.Program
}

// NewRulesPolicy compiles the configured rules. Rules are evaluated in
// configuration order.
func NewRulesPolicy(rules []RuleConfig) (*RulesPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("service", cel.StringType),
		cel.Variable("dependencies", cel.ListType(cel.StringType)),
		cel.Variable("ads", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile admission rule %s: %w", rule.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("admission rule %s must evaluate to a boolean, got %s",
				rule.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for admission rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{name: rule.Name, program: program})
	}

	return &RulesPolicy{rules: compiled}, nil
}

// Name implements Policy.
func (p *RulesPolicy) Name() string {
	return "admission-rules"
}

// Check implements Policy. The first rule evaluating to true blocks
// the request. A rule that fails to evaluate for this input does not
// match it.
func (p *RulesPolicy) Check(md node.Metadata) *Violation {
	input := map[string]interface{}{
		"service":      md.ServiceName,
		"dependencies": md.Dependencies.Values(),
		"ads":          md.ADS,
	}

	for _, rule := range p.rules {
		result, _, err := rule.program.Eval(input)
		if err != nil {
			continue
		}
		if blocked, ok := result.Value().(bool); ok && blocked {
			return &Violation{
				Kind:    KindRuleDenied,
				Service: md.ServiceName,
				Rule:    rule.name,
			}
		}
	}
	return nil
}

var _ Policy = (*RulesPolicy)(nil)
