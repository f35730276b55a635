package script

import (
	"fmt"
	"strconv"
)

// Parser builds a Program from a token sequence using recursive descent
type Parser struct {
	tokens []Token
	pos    int
	nextID NodeID
}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse is shorthand for NewParser().Parse(tokens)
func Parse(tokens []Token) (*Program, error) {
	return NewParser().Parse(tokens)
}

// Compile tokenizes and parses source
func Compile(source string) (*Program, error) {
	return Parse(Tokenize(source))
}

// Parse builds a Program. The first statement becomes the Declaration when it is an
// indicator(...) or strategy(...) call.
func (p *Parser) Parse(tokens []Token) (*Program, error) {
	p.tokens = make([]Token, 0, len(tokens)+1)
	for _, t := range tokens {
		if t.Type == TokenVersionComment {
			continue
		}
		// a dropped comment line leaves its surrounding newlines adjacent
		if n := len(p.tokens); t.Type == TokenNewline && n > 0 && p.tokens[n-1].Type == TokenNewline {
			continue
		}
		p.tokens = append(p.tokens, t)
	}
	if n := len(p.tokens); n == 0 || p.tokens[n-1].Type != TokenEOF {
		last := Token{Type: TokenEOF, Line: 1, Column: 1}
		if n > 0 {
			last.Line = p.tokens[n-1].Line
			last.Column = p.tokens[n-1].Column + len(p.tokens[n-1].Text)
		}
		p.tokens = append(p.tokens, last)
	}
	p.pos = 0
	p.nextID = 0

	program := &Program{}
	first := true

	for {
		p.skipNewlines()
		if p.check(TokenEOF) {
			break
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if err := p.expectStatementEnd(); err != nil {
			return nil, err
		}

		if first {
			first = false
			if call := declarationCall(stmt); call != nil {
				program.Declaration = call
				continue
			}
		}
		program.Statements = append(program.Statements, stmt)
	}

	program.NodeCount = int(p.nextID)
	return program, nil
}

func declarationCall(stmt Stmt) *CallExpr {
	es, ok := stmt.(*ExpressionStmt)
	if !ok {
		return nil
	}
	call, ok := es.Expr.(*CallExpr)
	if !ok {
		return nil
	}
	if call.Name == "indicator" || call.Name == "strategy" {
		return call
	}
	return nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.current()

	if tok.Type == TokenIf {
		return p.parseIf()
	}

	if tok.Type == TokenIdentifier {
		// name = expr
		if p.peek(1).Type == TokenAssign {
			p.advance()
			p.advance()
			return p.parseAssignment(tok)
		}
		// name := expr
		if p.peek(1).Type == TokenColon && p.peek(2).Type == TokenAssign {
			p.advance()
			p.advance()
			p.advance()
			return p.parseAssignment(tok)
		}
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ExpressionStmt{node: p.newNode(tok), Expr: expr}, nil
}

func (p *Parser) parseAssignment(name Token) (Stmt, error) {
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &AssignmentStmt{node: p.newNode(name), Name: name.Text, Value: value}, nil
}

// parseIf handles
//
//	if (cond) stmt [else stmt]
//	if (cond)
//	    block
//	else if (cond) ...
//	else
//	    block
//
// Block lines are those indented past the if keyword's column.
func (p *Parser) parseIf() (Stmt, error) {
	return p.parseIfAt(p.current().Column)
}

// parseIfAt parses an if whose blocks and else align to column. An else-if chain
// keeps the column of its first if.
func (p *Parser) parseIfAt(column int) (Stmt, error) {
	ifTok := p.advance()

	if _, err := p.expect(TokenLParen, "expected '(' after 'if'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen, "expected ')' after if condition"); err != nil {
		return nil, err
	}

	thenBlock, err := p.parseBranch(column)
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{node: p.newNode(ifTok), Cond: cond, Then: thenBlock}

	switch {
	case p.check(TokenElse):
	case p.check(TokenNewline) && p.peek(1).Type == TokenElse && p.peek(1).Column == column:
		p.advance()
	default:
		return stmt, nil
	}
	p.advance() // else

	if p.check(TokenIf) {
		nested, err := p.parseIfAt(column)
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{nested}
		return stmt, nil
	}

	elseBlock, err := p.parseBranch(column)
	if err != nil {
		return nil, err
	}
	stmt.Else = elseBlock
	return stmt, nil
}

// parseBranch parses either a single statement on the current line or an indented block
func (p *Parser) parseBranch(parentColumn int) ([]Stmt, error) {
	if !p.check(TokenNewline) && !p.check(TokenEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return []Stmt{stmt}, nil
	}

	var block []Stmt
	for p.check(TokenNewline) {
		next := p.peek(1)
		if next.Type == TokenEOF || next.Column <= parentColumn {
			break
		}
		p.advance()

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if !p.check(TokenNewline) && !p.check(TokenEOF) {
			return nil, p.errorf(UnexpectedToken, p.current(), "unexpected %s after statement", p.current())
		}
		block = append(block, stmt)
	}

	if len(block) == 0 {
		return nil, p.errorf(UnterminatedExpression, p.current(), "expected an indented block")
	}
	return block, nil
}

func (p *Parser) expectStatementEnd() error {
	if p.check(TokenNewline) || p.check(TokenEOF) {
		return nil
	}
	return p.errorf(UnexpectedToken, p.current(), "unexpected %s after statement", p.current())
}

// Expressions, lowest precedence first

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.check(TokenQuestion) {
		return cond, nil
	}
	q := p.advance()

	ifTrue, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "expected ':' in conditional expression"); err != nil {
		return nil, err
	}
	ifFalse, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &TernaryExpr{node: p.newNode(q), Cond: cond, IfTrue: ifTrue, IfFalse: ifFalse}, nil
}

func (p *Parser) parseOr() (Expr, error) {
	return p.parseBinary(p.parseAnd, TokenOr)
}

func (p *Parser) parseAnd() (Expr, error) {
	return p.parseBinary(p.parseNot, TokenAnd)
}

func (p *Parser) parseNot() (Expr, error) {
	if p.check(TokenNot) {
		op := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{node: p.newNode(op), Op: TokenNot, Operand: operand}, nil
	}
	return p.parseEquality()
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinary(p.parseRelational, TokenEqual, TokenNotEqual)
}

func (p *Parser) parseRelational() (Expr, error) {
	return p.parseBinary(p.parseAdditive, TokenGreater, TokenGreaterEqual, TokenLess, TokenLessEqual)
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinary(p.parseMultiplicative, TokenPlus, TokenMinus)
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinary(p.parseUnary, TokenStar, TokenSlash, TokenPercent)
}

// parseBinary parses a left-associative chain of the given operators
func (p *Parser) parseBinary(operand func() (Expr, error), ops ...TokenType) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}

	for p.checkAny(ops...) {
		op := p.advance()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{node: p.newNode(op), Op: op.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.check(TokenMinus) {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{node: p.newNode(op), Op: TokenMinus, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, p.errorf(UnexpectedToken, tok, "invalid number %q", tok.Text)
		}
		return &NumberLiteral{node: p.newNode(tok), Value: v}, nil

	case TokenString:
		p.advance()
		return &StringLiteral{node: p.newNode(tok), Value: tok.Text}, nil

	case TokenColor:
		p.advance()
		c, err := ParseColor(tok.Text)
		if err != nil {
			return nil, p.errorf(UnexpectedToken, tok, "%v", err)
		}
		return &ColorLiteral{node: p.newNode(tok), Value: c}, nil

	case TokenTrue, TokenFalse:
		p.advance()
		return &BoolLiteral{node: p.newNode(tok), Value: tok.Type == TokenTrue}, nil

	case TokenLParen:
		p.advance()
		p.skipNewlines()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		if _, err := p.expect(TokenRParen, "expected ')'"); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenIdentifier:
		p.advance()
		name := tok.Text
		for p.check(TokenDot) && p.peek(1).Type == TokenIdentifier {
			p.advance()
			name += "." + p.advance().Text
		}
		if p.check(TokenLParen) {
			return p.parseCall(tok, name)
		}
		return &Identifier{node: p.newNode(tok), Name: name}, nil

	case TokenEOF, TokenNewline:
		return nil, p.errorf(UnterminatedExpression, tok, "expected an expression")
	}

	return nil, p.errorf(UnexpectedToken, tok, "unexpected %s", tok)
}

func (p *Parser) parseCall(nameTok Token, name string) (Expr, error) {
	p.advance() // (
	call := &CallExpr{Name: name}

	p.skipNewlines()
	if p.check(TokenRParen) {
		p.advance()
		call.node = p.newNode(nameTok)
		return call, nil
	}

	for {
		p.skipNewlines()

		if p.check(TokenIdentifier) && p.peek(1).Type == TokenAssign {
			key := p.advance()
			p.advance()
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if call.Named == nil {
				call.Named = make(map[string]Expr)
			}
			if _, dup := call.Named[key.Text]; dup {
				return nil, p.errorf(UnexpectedToken, key, "duplicate named argument %q", key.Text)
			}
			call.Named[key.Text] = value
		} else {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}

		p.skipNewlines()
		switch p.current().Type {
		case TokenComma:
			p.advance()
			continue
		case TokenRParen:
			p.advance()
			call.node = p.newNode(nameTok)
			return call, nil
		case TokenEOF:
			return nil, p.errorf(UnterminatedExpression, p.current(), "expected ')' to close call to %s", name)
		default:
			return nil, p.errorf(UnexpectedToken, p.current(), "unexpected %s in call to %s", p.current(), name)
		}
	}
}

// Token helpers

func (p *Parser) newNode(tok Token) node {
	n := node{id: p.nextID, pos: Position{Line: tok.Line, Column: tok.Column}}
	p.nextID++
	return n
}

func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) check(tt TokenType) bool {
	return p.current().Type == tt
}

func (p *Parser) checkAny(types ...TokenType) bool {
	cur := p.current().Type
	for _, tt := range types {
		if cur == tt {
			return true
		}
	}
	return false
}

func (p *Parser) expect(tt TokenType, message string) (Token, error) {
	if p.check(tt) {
		return p.advance(), nil
	}
	kind := UnexpectedToken
	if p.check(TokenEOF) || p.check(TokenNewline) {
		kind = UnterminatedExpression
	}
	return Token{}, p.errorf(kind, p.current(), "%s, got %s", message, p.current())
}

func (p *Parser) skipNewlines() {
	for p.check(TokenNewline) {
		p.advance()
	}
}

func (p *Parser) errorf(kind SyntaxErrorKind, tok Token, format string, args ...interface{}) error {
	return &SyntaxError{
		Kind:    kind,
		Line:    tok.Line,
		Column:  tok.Column,
		Message: fmt.Sprintf(format, args...),
	}
}
