/*
Package expr compiles the filter expressions used for event routing.

# Overview

Filters are attached to a unit (an input filter) or to one of its
receivers. They are compiled once at configuration time into a tree of
closures and then evaluated for every event. A compile error is a fatal
configuration error; an evaluation error is reported to the caller, which
logs it and treats the event as not matching.

# Expression Syntax

	<filter>     := ['if'] <or>
	<or>         := <and> { 'or' <and> }
	<and>        := <unary> { 'and' <unary> }
	<unary>      := ('not' | '!') <unary> | <comparison>
	<comparison> := <operand> [ <op> <operand> ]
	<op>         := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'in' | 'not in' | 'contains'
	<operand>    := '(' <or> ')' | '[' [<operand> {',' <operand>}] ']'
	              | 'string' | "string" | number | true | false | null | none | nil
	              | $(path) | path

# Field References

Any identifier that is not a keyword or literal is an event path, so the
following are equivalent:

	http.status == 404
	$(http.status) == 404

A path that is absent from the event evaluates to nil. nil equals only
nil, and ordering comparisons against nil fail with ErrTypeMismatch, so an
event without a status field never matches "status >= 400".

# Operators

	==, !=      numeric comparison when both sides are numbers, otherwise
	            comparison of their %v renderings
	<, >, <=, >=
	            numeric or lexical; mixed types return ErrTypeMismatch
	in          element of a list, key of a map, or substring of a string
	not in      negation of in
	contains    reversed in: the left operand holds the right one

# Examples

	filter, err := expr.Compile("if $(status) == 404 and method in ['GET', 'HEAD']")
	if err != nil {
	    return err
	}
	ok, err := filter.Match(evt)

# Custom Operators

Register custom binary operators:

	f, _ := expr.Compile("name matches '^test.*'",
	    expr.WithCustomOperator("matches", func(left, right any) bool {
	        matched, _ := regexp.MatchString(fmt.Sprintf("%v", right), fmt.Sprintf("%v", left))
	        return matched
	    }),
	)

# Truthiness

A filter matches when its result is truthy:

  - nil: false
  - bool: the boolean value
  - string, list, map: false if empty
  - numbers: false if zero
  - other types: true
*/
package expr
