/*
Package expr evaluates the boolean conditions used by declarative routes.

# Syntax

	<expr>       := <or>
	<or>         := <and> { ('or' | '||') <and> }
	<and>        := <unary> { ('and' | '&&') <unary> }
	<unary>      := ('not' | '!') <unary> | <comparison>
	<comparison> := <operand> [ <op> <operand> ]
	<op>         := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | custom
	<operand>    := 'string' | "string" | number | true | false | null
	              | identifier | '(' <expr> ')'

Identifiers may be dotted paths into nested maps (user.plan). A missing
identifier resolves to nil.

# Operators

	==, !=     numbers compare numerically, everything else by value
	<, >, ...  numbers numerically, strings lexically; other pairs are an error
	contains   substring, slice element or map key

# Usage

Expressions are parsed once and evaluated many times:

	p, err := expr.Compile("intent == 'sql' and not needs_review")
	if err != nil {
	    return err
	}
	ok, err := p.Eval(map[string]any{"intent": "sql"})

Eval parses and evaluates in one call:

	ok, _ := expr.Eval("retries < 3", vars)

Custom binary operators are registered on an Evaluator:

	e := expr.New(expr.WithCustomOperator("matches", func(left, right any) bool {
	    ok, _ := regexp.MatchString(fmt.Sprint(right), fmt.Sprint(left))
	    return ok
	}))
	p, _ := e.Compile("query matches '^SELECT'")

# Truthiness

A bare operand is true unless it is nil, false, an empty string, a zero
number or an empty slice or map.
*/
package expr
