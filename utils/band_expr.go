package utils

import (
	"fmt"

	goeval "github.com/edisonguo/govaluate"
)

// BandExpressions holds a set of parsed band-arithmetic expressions
// together with the variables each one references. VarList is the
// deduplicated union of referenced variables across all expressions, in
// first-seen order.
type BandExpressions struct {
	ExprText    []string
	ExprNames   []string
	Expressions []*goeval.EvaluableExpression
	ExprVarRef  [][]string
	VarList     []string
}

// ParseBandExpressions parses each expression string and records its
// variable references. Expression names default to the expression text;
// callers with configured output names override ExprNames afterwards.
func ParseBandExpressions(bands []string) (*BandExpressions, error) {
	bandExpr := &BandExpressions{}
	seen := make(map[string]struct{})
	for _, text := range bands {
		expr, err := goeval.NewEvaluableExpression(text)
		if err != nil {
			return nil, fmt.Errorf("parsing expression %q: %v", text, err)
		}
		bandExpr.ExprText = append(bandExpr.ExprText, text)
		bandExpr.ExprNames = append(bandExpr.ExprNames, text)
		bandExpr.Expressions = append(bandExpr.Expressions, expr)

		var refs []string
		refSeen := make(map[string]struct{})
		for _, token := range expr.Tokens() {
			if token.Kind != goeval.VARIABLE {
				continue
			}
			name, ok := token.Value.(string)
			if !ok {
				return nil, fmt.Errorf("expression %q has non-string variable token %v", text, token.Value)
			}
			if _, dup := refSeen[name]; !dup {
				refSeen[name] = struct{}{}
				refs = append(refs, name)
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				bandExpr.VarList = append(bandExpr.VarList, name)
			}
		}
		bandExpr.ExprVarRef = append(bandExpr.ExprVarRef, refs)
	}
	return bandExpr, nil
}
