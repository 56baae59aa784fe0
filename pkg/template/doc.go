// Package template expands declarative JSON-like response templates into
// concrete mock data.
//
// # Directives
//
// A string value of the form @name or @name(args) is a directive:
//   - @guid, @integer(1,10), @image(200x200) - built-in generators
//     (see package generator)
//   - @myuser - a custom rule (alias) registered with Aliases.Register
//
// Built-in generators always take precedence over aliases of the same name.
// Alias templates are expanded recursively, so an alias may reference other
// aliases, generators and repeat keys. Directives that resolve to nothing are
// returned unchanged.
//
// # Repeat Keys
//
// An object key of the form name|N produces a sequence under name:
//
//	{"items|3": {"id": "@guid"}}        // three independently expanded objects
//	{"items|2": ["@guid", "@integer"]}  // two passes over the array, flattened (4 items)
//
// # Guarantees
//
// Expand never mutates its input, so a template can be expanded repeatedly.
// Alias resolution deeper than the configured limit fails with ErrDepthExceeded.
package template
