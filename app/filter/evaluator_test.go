package filter

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/feedrelay/feedrelay/app/identity"
)

func eq(field, value string) *Expression {
	return &Expression{
		Type:  TypeRelational,
		Op:    string(OpEq),
		Left:  Operand{Value: field},
		Right: Operand{Value: value},
	}
}

func logical(op LogicalOp, children ...*Expression) *Expression {
	return &Expression{Type: TypeLogical, Op: string(op), Children: children}
}

func mustEvaluate(t *testing.T, expr *Expression, article identity.Article) Result {
	t.Helper()

	result, err := Evaluate(context.Background(), expr, article)
	if err != nil {
		t.Fatalf("unexpected evaluation error: %v", err)
	}
	return result
}

func TestEvaluate_NilExpressionPasses(t *testing.T) {
	result := mustEvaluate(t, nil, identity.Article{"title": "a"})
	if !result.Passed {
		t.Error("nil expression must pass")
	}
}

func TestEvaluate_AndShortCircuits(t *testing.T) {
	expr := logical(OpAnd, eq("title", "a"), eq("title", "b"))
	result := mustEvaluate(t, expr, identity.Article{"title": "a"})

	if result.Passed {
		t.Fatal("AND with a failing child must fail")
	}
	want := []Explanation{{
		Message:        "Reference value does not equal filter input",
		ReferenceValue: "a",
		FilterInput:    "b",
	}}
	if diff := cmp.Diff(want, result.ExplainBlocked); diff != "" {
		t.Errorf("explanation must reference only the failing child (-want +got):\n%s", diff)
	}
}

func TestEvaluate_OrShortCircuits(t *testing.T) {
	expr := logical(OpOr, eq("title", "a"), eq("title", "b"))
	result := mustEvaluate(t, expr, identity.Article{"title": "a"})

	if !result.Passed {
		t.Fatal("OR with a passing child must pass")
	}
	if len(result.ExplainBlocked) != 0 {
		t.Errorf("passing OR must discard explanations, got %v", result.ExplainBlocked)
	}
}

func TestEvaluate_OrConcatenatesAllExplanations(t *testing.T) {
	expr := logical(OpOr, eq("title", "x"), eq("title", "y"))
	result := mustEvaluate(t, expr, identity.Article{"title": "a"})

	if result.Passed {
		t.Fatal("OR with no passing child must fail")
	}
	if len(result.ExplainBlocked) != 2 {
		t.Errorf("expected both children's explanations, got %d", len(result.ExplainBlocked))
	}
}

func TestEvaluate_EmptyLogicalPasses(t *testing.T) {
	for _, op := range []LogicalOp{OpAnd, OpOr} {
		result := mustEvaluate(t, logical(op), identity.Article{})
		if !result.Passed {
			t.Errorf("%s over zero children must pass", op)
		}
	}
}

func TestEvaluate_ContainsIsCaseInsensitive(t *testing.T) {
	expr := &Expression{
		Type:  TypeRelational,
		Op:    string(OpContains),
		Left:  Operand{Value: "title"},
		Right: Operand{Value: "BREAKING"},
	}
	result := mustEvaluate(t, expr, identity.Article{"title": "breaking news"})
	if !result.Passed {
		t.Error("CONTAINS must be case-insensitive")
	}
}

func TestEvaluate_MissingFieldComparesAsEmpty(t *testing.T) {
	result := mustEvaluate(t, eq("author", ""), identity.Article{"title": "a"})
	if !result.Passed {
		t.Error("absent field must compare as empty string")
	}
}

func TestEvaluate_MatchesWithNotInvertsFailure(t *testing.T) {
	expr := &Expression{
		Type:  TypeRelational,
		Op:    string(OpMatches),
		Not:   true,
		Left:  Operand{Value: "title"},
		Right: Operand{Value: "^sports"},
	}
	result := mustEvaluate(t, expr, identity.Article{"title": "politics daily"})
	if !result.Passed {
		t.Error("not + non-matching pattern must pass")
	}
}

func TestEvaluate_MatchesCaseInsensitive(t *testing.T) {
	expr := &Expression{
		Type:  TypeRelational,
		Op:    string(OpMatches),
		Left:  Operand{Value: "title"},
		Right: Operand{Value: "^breaking"},
	}
	result := mustEvaluate(t, expr, identity.Article{"title": "Breaking News"})
	if !result.Passed {
		t.Error("regex matching must be case-insensitive")
	}
}

func TestEvaluate_InvalidRegexIsError(t *testing.T) {
	expr := &Expression{
		Type:  TypeRelational,
		Op:    string(OpMatches),
		Left:  Operand{Value: "title"},
		Right: Operand{Value: "(unclosed"},
	}
	if _, err := Evaluate(context.Background(), expr, identity.Article{"title": "a"}); err == nil {
		t.Error("invalid regex must be a returned error, not a silent fail")
	}
}

func TestEvaluate_UnknownTypeIsError(t *testing.T) {
	expr := &Expression{Type: "FANCY"}
	if _, err := Evaluate(context.Background(), expr, identity.Article{}); err == nil {
		t.Error("unknown expression type must be an error")
	}
}

func TestEvaluate_UnknownOperatorIsError(t *testing.T) {
	expr := &Expression{Type: TypeRelational, Op: "XOR"}
	if _, err := Evaluate(context.Background(), expr, identity.Article{}); err == nil {
		t.Error("unknown relational operator must be an error")
	}

	expr = &Expression{Type: TypeLogical, Op: "NAND"}
	if _, err := Evaluate(context.Background(), expr, identity.Article{}); err == nil {
		t.Error("unknown logical operator must be an error")
	}
}

func TestEvaluate_ErrorPropagatesThroughLogicalNodes(t *testing.T) {
	bad := &Expression{
		Type:  TypeRelational,
		Op:    string(OpMatches),
		Left:  Operand{Value: "title"},
		Right: Operand{Value: "(unclosed"},
	}
	expr := logical(OpAnd, eq("title", "a"), bad)

	if _, err := Evaluate(context.Background(), expr, identity.Article{"title": "a"}); err == nil {
		t.Error("child evaluation errors must propagate")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	data := []byte(`{
		"type": "LOGICAL",
		"op": "AND",
		"children": [
			{"type": "RELATIONAL", "op": "CONTAINS", "left": {"value": "title"}, "right": {"value": "go"}},
			{"type": "RELATIONAL", "op": "EQ", "not": true, "left": {"value": "author"}, "right": {"value": "bot"}}
		]
	}`)

	expr, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(expr.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(expr.Children))
	}
	if !expr.Children[1].Not {
		t.Error("not flag lost in parsing")
	}

	result := mustEvaluate(t, expr, identity.Article{"title": "golang weekly", "author": "jane"})
	if !result.Passed {
		t.Error("expected article to pass the parsed filter")
	}
}

func TestParse_EmptyInput(t *testing.T) {
	expr, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != nil {
		t.Error("empty input must parse to nil (no filter)")
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`{"type":`)); err == nil {
		t.Error("malformed JSON must be an error")
	}
}

func TestEvaluate_DeepNesting(t *testing.T) {
	// OR( AND(EQ(title,a), EQ(cat,news)), EQ(title,b) ) against title=b
	expr := logical(OpOr,
		logical(OpAnd, eq("title", "a"), eq("category", "news")),
		eq("title", "b"),
	)
	result := mustEvaluate(t, expr, identity.Article{"title": "b"})
	if !result.Passed {
		t.Error("nested OR branch must pass")
	}
}

func TestEvaluate_LongReferenceValue(t *testing.T) {
	expr := &Expression{
		Type:  TypeRelational,
		Op:    string(OpMatches),
		Left:  Operand{Value: "content"},
		Right: Operand{Value: "(a+)+$"},
	}
	article := identity.Article{"content": strings.Repeat("a", 1<<16) + "b"}

	// Go's RE2 engine handles this in linear time; the call must return
	// within the timeout rather than hang.
	if _, err := Evaluate(context.Background(), expr, article); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
