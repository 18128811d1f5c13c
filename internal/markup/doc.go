// Package markup implements the livedoc document language: its AST, lexer,
// parser, checker and the derived node index.
//
// A document is a sequence of top-level blocks:
//
//	meta   { title = "Harbor Report"; }
//	assets { bank media { glob = "media/*.jpg"; } }
//	body   { page cover { section intro { ... } } }
//
// Every node is written as `kind id { items }` where an item is either a
// property (`name = value;`) or a child node. Values are literals or
// dynamic expressions introduced by the `@` sigil.
//
// # Spans
//
// The parser records a Span on every node and on every property value.
// Spans are line/column based (1-based line, 1-based byte column) and
// inclusive of the last byte. Callers that need byte offsets convert
// through a LineIndex, which is a prefix sum over line lengths.
//
// # Ownership
//
// A Document is rebuilt wholesale from source on every successful edit and
// is treated as immutable once published. Code that needs a modified tree
// works on Node.Clone().
package markup
