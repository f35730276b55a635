package script

import "fmt"

// TokenType identifies the lexical class of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenVersionComment

	// Literals
	TokenNumber
	TokenString
	TokenColor
	TokenIdentifier

	// Keywords
	TokenIf
	TokenElse
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse

	// Operators and punctuation
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPercent      // %
	TokenAssign       // =
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenGreater      // >
	TokenGreaterEqual // >=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenQuestion     // ?
	TokenColon        // :
	TokenDot          // .
	TokenLParen       // (
	TokenRParen       // )
	TokenComma        // ,
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "EOF",
	TokenNewline:        "newline",
	TokenVersionComment: "version comment",
	TokenNumber:         "number",
	TokenString:         "string",
	TokenColor:          "color",
	TokenIdentifier:     "identifier",
	TokenIf:             "if",
	TokenElse:           "else",
	TokenAnd:            "and",
	TokenOr:             "or",
	TokenNot:            "not",
	TokenTrue:           "true",
	TokenFalse:          "false",
	TokenPlus:           "+",
	TokenMinus:          "-",
	TokenStar:           "*",
	TokenSlash:          "/",
	TokenPercent:        "%",
	TokenAssign:         "=",
	TokenEqual:          "==",
	TokenNotEqual:       "!=",
	TokenGreater:        ">",
	TokenGreaterEqual:   ">=",
	TokenLess:           "<",
	TokenLessEqual:      "<=",
	TokenQuestion:       "?",
	TokenColon:          ":",
	TokenDot:            ".",
	TokenLParen:         "(",
	TokenRParen:         ")",
	TokenComma:          ",",
}

// String returns a readable name for the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

var keywords = map[string]TokenType{
	"if":    TokenIf,
	"else":  TokenElse,
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"true":  TokenTrue,
	"false": TokenFalse,
}

// Token is a single lexical token. Line and Column are 1-based.
type Token struct {
	Type   TokenType
	Text   string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Text)
}
