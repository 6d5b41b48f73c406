package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/feedrelay/feedrelay/app/identity"
)

// RegexTimeout bounds a single MATCHES evaluation. Go's regexp engine does
// not backtrack, but adversarial patterns over large inputs still deserve a
// hard wall-clock limit.
const RegexTimeout = 5 * time.Second

// Evaluate runs an article through a filter expression. A nil expression
// always passes. Evaluation errors (malformed trees, bad or timed-out
// regexes) are returned to the caller, never converted into a pass or fail:
// a silently-passing bad filter misroutes content and a silently-failing one
// blocks all delivery.
func Evaluate(ctx context.Context, expr *Expression, article identity.Article) (Result, error) {
	if expr == nil {
		return Result{Passed: true}, nil
	}

	switch expr.Type {
	case TypeLogical:
		return evaluateLogical(ctx, expr, article)
	case TypeRelational:
		return evaluateRelational(ctx, expr, article)
	default:
		return Result{}, fmt.Errorf("unknown expression type %q", expr.Type)
	}
}

func evaluateLogical(ctx context.Context, expr *Expression, article identity.Article) (Result, error) {
	switch LogicalOp(expr.Op) {
	case OpAnd:
		// Short-circuit on the first failing child and surface only its
		// explanation. Zero children pass.
		for _, child := range expr.Children {
			result, err := Evaluate(ctx, child, article)
			if err != nil {
				return Result{}, err
			}
			if !result.Passed {
				return Result{Passed: false, ExplainBlocked: result.ExplainBlocked}, nil
			}
		}
		return Result{Passed: true}, nil

	case OpOr:
		// Short-circuit on the first passing child, discarding collected
		// explanations. Zero children pass; all-fail concatenates every
		// child's explanations.
		var all []Explanation
		for _, child := range expr.Children {
			result, err := Evaluate(ctx, child, article)
			if err != nil {
				return Result{}, err
			}
			if result.Passed {
				return Result{Passed: true}, nil
			}
			all = append(all, result.ExplainBlocked...)
		}
		if len(expr.Children) == 0 {
			return Result{Passed: true}, nil
		}
		return Result{Passed: false, ExplainBlocked: all}, nil

	default:
		return Result{}, fmt.Errorf("unknown logical operator %q", expr.Op)
	}
}

func evaluateRelational(ctx context.Context, expr *Expression, article identity.Article) (Result, error) {
	// Absent fields compare as the empty string.
	reference := article.Field(expr.Left.Value)
	input := expr.Right.Value

	var matched bool
	var explanation Explanation

	switch RelationalOp(expr.Op) {
	case OpEq:
		matched = reference == input
		explanation = Explanation{
			Message:        "Reference value does not equal filter input",
			ReferenceValue: reference,
			FilterInput:    input,
		}

	case OpContains:
		matched = strings.Contains(strings.ToLower(reference), strings.ToLower(input))
		explanation = Explanation{
			Message:        "Reference value does not contain filter input",
			ReferenceValue: reference,
			FilterInput:    input,
		}

	case OpMatches:
		var err error
		matched, err = matchRegex(ctx, input, reference)
		if err != nil {
			return Result{}, err
		}
		explanation = Explanation{
			Message:        "Reference value does not match regex",
			ReferenceValue: reference,
			FilterInput:    input,
		}

	default:
		return Result{}, fmt.Errorf("unknown relational operator %q", expr.Op)
	}

	explain := []Explanation{}
	if !matched {
		explain = append(explain, explanation)
	}

	// The not flag inverts after evaluation, so a failed match becomes a
	// pass (carrying its explanation, which callers discard on pass).
	passed := matched
	if expr.Not {
		passed = !matched
	}

	return Result{Passed: passed, ExplainBlocked: explain}, nil
}

// matchRegex runs a case-insensitive regex match bounded by RegexTimeout and
// the caller's context. The match runs in its own goroutine; a timeout
// abandons it and reports an error.
func matchRegex(ctx context.Context, pattern, reference string) (bool, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, fmt.Errorf("invalid filter regex %q: %w", pattern, err)
	}

	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(reference)
	}()

	timer := time.NewTimer(RegexTimeout)
	defer timer.Stop()

	select {
	case matched := <-done:
		return matched, nil
	case <-timer.C:
		return false, fmt.Errorf("filter regex %q timed out after %s", pattern, RegexTimeout)
	case <-ctx.Done():
		return false, fmt.Errorf("filter regex %q evaluation cancelled: %w", pattern, ctx.Err())
	}
}
