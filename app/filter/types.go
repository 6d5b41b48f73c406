// Package filter evaluates user-configured expression trees against
// articles to decide whether they should be delivered.
package filter

import (
	"encoding/json"
	"fmt"
)

type ExpressionType string

const (
	TypeLogical    ExpressionType = "LOGICAL"
	TypeRelational ExpressionType = "RELATIONAL"
)

type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

type RelationalOp string

const (
	OpEq       RelationalOp = "EQ"
	OpContains RelationalOp = "CONTAINS"
	OpMatches  RelationalOp = "MATCHES"
)

// Expression is one node of a filter tree: either a logical combinator over
// children or a relational comparison of an article field against a literal.
// The Type tag closes the union; evaluation rejects unknown tags rather than
// silently ignoring them.
type Expression struct {
	Type ExpressionType `json:"type"`

	// Logical nodes
	Op       string        `json:"op"`
	Children []*Expression `json:"children,omitempty"`

	// Relational nodes
	Not   bool    `json:"not,omitempty"`
	Left  Operand `json:"left,omitzero"`
	Right Operand `json:"right,omitzero"`
}

// Operand names an article field (left side) or carries a literal (right
// side).
type Operand struct {
	Value string `json:"value"`
}

// Parse decodes a JSON-encoded filter expression, as stored on a delivery
// destination. Empty input means "no filter".
func Parse(data []byte) (*Expression, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var expr Expression
	if err := json.Unmarshal(data, &expr); err != nil {
		return nil, fmt.Errorf("failed to parse filter expression: %w", err)
	}
	return &expr, nil
}

// Explanation describes why a relational leaf rejected an article, for
// user-facing "why was this blocked" diagnostics.
type Explanation struct {
	Message        string `json:"message"`
	ReferenceValue string `json:"referenceValue"`
	FilterInput    string `json:"filterInput"`
}

// Result is the outcome of evaluating an expression against one article.
type Result struct {
	Passed         bool
	ExplainBlocked []Explanation
}
