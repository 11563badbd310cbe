// Package render expands module templates and evaluates conditions.
//
// Templates use text/template syntax against a Context of variables such
// as DOD_HOSTNAME or DOD_MODULES plus each module's context_vars. Missing
// keys are errors. Conditions are template expressions: "if" clauses in
// module declarations are rendered as {{if COND}}true{{else}}false{{end}}
// and only the literal output "true" passes.
package render
