package listing

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var listingLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{Name: "Comment", Pattern: `//[^\n]*|#[^\n]*`, Action: nil},

		// Addresses and immediates (Addr must precede Int)
		{Name: "Addr", Pattern: `0x[0-9a-fA-F]+`, Action: nil},
		{Name: "Int", Pattern: `[0-9]+`, Action: nil},

		// Identifiers: registers, temporaries, memory slot names, kinds
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`, Action: nil},

		// Arrow before Op so "->" is not split into "-" ">"
		{Name: "Arrow", Pattern: `->`, Action: nil},

		// Operators
		{Name: "Op", Pattern: `==|!=|<=|>=|<<|>>|[-+*/%&|^<>!]`, Action: nil},

		// Punctuation
		{Name: "Punct", Pattern: `[\[\]:=?,]`, Action: nil},

		// Whitespace
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},
	},
})
