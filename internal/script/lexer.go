package script

import (
	"strings"
)

// Lexer converts script source into a flat token sequence
type Lexer struct {
	input  string
	pos    int // offset of ch
	ch     byte
	line   int
	column int
	tokens []Token
}

// NewLexer creates a new lexer
func NewLexer() *Lexer {
	return &Lexer{}
}

// Tokenize is shorthand for NewLexer().Tokenize(source)
func Tokenize(source string) []Token {
	return NewLexer().Tokenize(source)
}

// Tokenize scans source and returns its tokens, always terminated by EOF.
// It never fails: characters outside the language are dropped.
func (l *Lexer) Tokenize(source string) []Token {
	l.input = source
	l.pos = -1
	l.line = 1
	l.column = 0
	l.tokens = make([]Token, 0, len(source)/3+1)
	l.readChar()

	for !l.atEnd() {
		l.next()
	}

	for len(l.tokens) > 0 && l.tokens[len(l.tokens)-1].Type == TokenNewline {
		l.tokens = l.tokens[:len(l.tokens)-1]
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Line: l.line, Column: l.column + 1})
	return l.tokens
}

func (l *Lexer) next() {
	line, col := l.line, l.column

	switch l.ch {
	case ' ', '\t', '\r':
		l.readChar()
	case '\n':
		if n := len(l.tokens); n > 0 && l.tokens[n-1].Type != TokenNewline {
			l.emit(TokenNewline, "\n", line, col)
		}
		l.readChar()
	case '/':
		if l.peekChar() == '/' {
			l.readComment(line, col)
			return
		}
		l.emit(TokenSlash, "/", line, col)
		l.readChar()
	case '"':
		l.emit(TokenString, l.readString(), line, col)
	case '#':
		l.readChar()
		start := l.pos
		for isHexDigit(l.ch) {
			l.readChar()
		}
		if l.pos > start {
			l.emit(TokenColor, "#"+l.input[start:l.pos], line, col)
		}
	case '=', '!', '>', '<':
		l.readOperator(line, col)
	default:
		switch {
		case isLetter(l.ch):
			ident := l.readIdentifier()
			if kw, ok := keywords[ident]; ok {
				l.emit(kw, ident, line, col)
			} else {
				l.emit(TokenIdentifier, ident, line, col)
			}
		case isDigit(l.ch):
			l.emit(TokenNumber, l.readNumber(), line, col)
		default:
			if tt, ok := singleCharTokens[l.ch]; ok {
				l.emit(tt, string(l.ch), line, col)
			}
			l.readChar()
		}
	}
}

var singleCharTokens = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'%': TokenPercent,
	'?': TokenQuestion,
	':': TokenColon,
	'.': TokenDot,
	'(': TokenLParen,
	')': TokenRParen,
	',': TokenComma,
}

func (l *Lexer) readOperator(line, col int) {
	first := l.ch
	if l.peekChar() == '=' {
		l.readChar()
		l.readChar()
		switch first {
		case '=':
			l.emit(TokenEqual, "==", line, col)
		case '!':
			l.emit(TokenNotEqual, "!=", line, col)
		case '>':
			l.emit(TokenGreaterEqual, ">=", line, col)
		case '<':
			l.emit(TokenLessEqual, "<=", line, col)
		}
		return
	}

	l.readChar()
	switch first {
	case '=':
		l.emit(TokenAssign, "=", line, col)
	case '>':
		l.emit(TokenGreater, ">", line, col)
	case '<':
		l.emit(TokenLess, "<", line, col)
	}
	// a lone '!' is dropped
}

func (l *Lexer) emit(tt TokenType, text string, line, col int) {
	l.tokens = append(l.tokens, Token{Type: tt, Text: text, Line: line, Column: col})
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	l.pos++
	if l.pos >= len(l.input) {
		l.pos = len(l.input)
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
	l.column++
}

// atEnd reports whether the whole input is consumed. A NUL byte in the source is an
// ordinary dropped character.
func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) peekChar() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

// readComment consumes a line comment. //@ comments are kept as version metadata.
func (l *Lexer) readComment(line, col int) {
	start := l.pos
	for l.ch != '\n' && !l.atEnd() {
		l.readChar()
	}
	text := strings.TrimRight(l.input[start:l.pos], "\r")
	if strings.HasPrefix(text, "//@") {
		l.emit(TokenVersionComment, text, line, col)
	}
}

// readString returns the string body. Escapes are copied through as written and an
// unterminated string ends at the end of the line.
func (l *Lexer) readString() string {
	var sb strings.Builder
	l.readChar() // opening quote

	for l.ch != '"' && l.ch != '\n' && !l.atEnd() {
		if l.ch == '\\' {
			if l.peekChar() == '\n' || l.pos+1 >= len(l.input) {
				sb.WriteByte(l.ch)
				l.readChar()
				break
			}
			sb.WriteByte(l.ch)
			l.readChar()
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	if l.ch == '"' {
		l.readChar()
	}
	return sb.String()
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	seenDot := false
	for isDigit(l.ch) || (l.ch == '.' && !seenDot) {
		if l.ch == '.' {
			seenDot = true
		}
		l.readChar()
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}
