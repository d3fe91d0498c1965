// Package policy evaluates an operator-configured CEL expression over every
// proposal before it is admitted. An unconfigured policy admits everything;
// a configured one is fail-closed on evaluation errors.
package policy

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// ErrPolicyRejected is returned when the admission expression evaluates
// false for a proposal.
var ErrPolicyRejected = errors.New("proposal rejected by admission policy")

// Input is the view of a proposal the expression can reference.
type Input struct {
	Author        string
	NumActions    int
	Kinds         []string
	TotalTransfer uint64
}

// Policy is a compiled admission expression.
type Policy struct {
	program cel.Program
}

// Compile builds a policy from a CEL expression. The expression sees:
//
//	author          string   proposal author identity
//	num_actions     int      number of actions
//	kinds           list     action kind tags, in order
//	total_transfer  uint     sum of transfer amounts across actions
func Compile(expression string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("author", cel.StringType),
		cel.Variable("num_actions", cel.IntType),
		cel.Variable("kinds", cel.ListType(cel.StringType)),
		cel.Variable("total_transfer", cel.UintType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy program: %w", err)
	}
	return &Policy{program: program}, nil
}

// Admit evaluates the policy for a proposal view. A nil policy admits.
func (p *Policy) Admit(input Input) error {
	if p == nil {
		return nil
	}
	out, _, err := p.program.Eval(map[string]any{
		"author":         input.Author,
		"num_actions":    input.NumActions,
		"kinds":          input.Kinds,
		"total_transfer": input.TotalTransfer,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPolicyRejected, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok || !allowed {
		return ErrPolicyRejected
	}
	return nil
}

// InputFor builds the policy view of a proposal.
func InputFor(p contracts.Proposal) Input {
	in := Input{Author: string(p.AuthorID), NumActions: len(p.Actions)}
	for _, action := range p.Actions {
		in.Kinds = append(in.Kinds, string(action.Kind))
		if action.Kind == contracts.ActionTransfer {
			if transfer, err := contracts.Decode[contracts.TransferAction](action.Data); err == nil {
				in.TotalTransfer += transfer.Amount
			}
		}
	}
	return in
}
