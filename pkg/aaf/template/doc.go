/*
Package template expands variables in prompt and value templates.

# Patterns

	${name}        brace style, may be a dotted path: ${user.plan}
	$name          dollar style, a plain identifier
	$$             a literal dollar sign

Values are written as strings; maps and slices are written as JSON so they
can be embedded in LLM prompts.

	out := template.Expand("Answer ${question} for ${user.name}", vars)

# Missing Variables

By default a missing variable is left as written. WithMissingAction
changes that:

	exp := template.NewExpander(template.WithMissingAction(template.MissingError))
	_, err := exp.Expand("Hello ${name}", nil)
	// err: undefined variable: name

Expander is safe for concurrent use after construction.
*/
package template
