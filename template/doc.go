// Package template implements a Django-style template language: documents
// mix literal text with {{ variable }} substitutions, {% tag %} logic
// blocks, and {# comment #} annotations, compiled once and rendered
// against a stack of variable scopes.
//
// An Engine owns the tag and filter tables plus rendering policy (debug
// mode, autoescaping, the replacement text for unresolvable variables).
// Templates compiled by an Engine are immutable and safe for concurrent
// rendering; per-render tag state lives in the Context passed to Render.
// Custom tags and filters are added through Library and registered on the
// engine directly or under a namespace for the {% load %} tag.
//
// # Usage
//
// Compile a source string against an engine and render it with a
// Context:
//
//	engine := template.New(template.WithStringIfInvalid("<missing>"))
//	tmpl, err := engine.FromString("Hello {{ name|title }}!")
//	if err != nil {
//		log.Fatal(err)
//	}
//	out, err := tmpl.Render(template.NewContext(map[string]any{
//		"name": "ada lovelace",
//	}))
//	// out == "Hello Ada Lovelace!"
//
// Engines with no special configuration can be skipped entirely: the
// package-level FromString compiles against a shared default engine.
//
// Templates on disk load through a Loader. The loaders subpackage
// provides a filesystem implementation and a compiling cache that
// invalidates on file changes:
//
//	engine := template.New(
//		template.WithLoader(loaders.NewFilesystem("templates")),
//	)
//	tmpl, err := engine.FromFile("welcome.html")
//
// # Custom tags and filters
//
// A Library groups related registrations. Attached under a name, its
// contents become available to templates that request it with
// {% load %}:
//
//	lib := template.NewLibrary()
//	lib.Filter("shout", func(value, arg any) (any, error) {
//		return strings.ToUpper(template.Stringify(value)), nil
//	}, false)
//	engine := template.New(template.WithLibrary("demo", lib))
//
// RegisterTag and RegisterFilter on the engine add entries to the
// builtin table instead, so templates use them without a load tag.
//
// # Errors
//
// Compilation returns *SyntaxError with the offending token and line.
// Engines built with WithDebug also attach an ExceptionInfo carrying
// the source lines around the failure. Render errors report the filter
// or tag that failed; unresolvable variables are not errors and render
// as the WithStringIfInvalid replacement.
package template
