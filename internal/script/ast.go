package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NodeID is a stable per-program node index assigned in parse order
type NodeID int

// Position is a 1-based source location
type Position struct {
	Line   int
	Column int
}

// Node is implemented by every AST node
type Node interface {
	ID() NodeID
	Pos() Position
}

// Expr is an expression node
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node
type Stmt interface {
	Node
	stmtNode()
}

type node struct {
	id  NodeID
	pos Position
}

func (n node) ID() NodeID    { return n.id }
func (n node) Pos() Position { return n.pos }

// Literals

type NumberLiteral struct {
	node
	Value float64
}

type StringLiteral struct {
	node
	Value string
}

type BoolLiteral struct {
	node
	Value bool
}

type ColorLiteral struct {
	node
	Value Color
}

// Expressions

type Identifier struct {
	node
	Name string
}

type BinaryExpr struct {
	node
	Op    TokenType
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	node
	Op      TokenType
	Operand Expr
}

type TernaryExpr struct {
	node
	Cond    Expr
	IfTrue  Expr
	IfFalse Expr
}

// CallExpr is a builtin call. Name may be dotted ("ta.sma").
type CallExpr struct {
	node
	Name  string
	Args  []Expr
	Named map[string]Expr
}

// Arg returns the positional argument at index, or the named argument, or nil
func (c *CallExpr) Arg(index int, name string) Expr {
	if name != "" {
		if e, ok := c.Named[name]; ok {
			return e
		}
	}
	if index >= 0 && index < len(c.Args) {
		return c.Args[index]
	}
	return nil
}

// Statements

type AssignmentStmt struct {
	node
	Name  string
	Value Expr
}

type ExpressionStmt struct {
	node
	Expr Expr
}

type IfStmt struct {
	node
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (*NumberLiteral) exprNode() {}
func (*StringLiteral) exprNode() {}
func (*BoolLiteral) exprNode()   {}
func (*ColorLiteral) exprNode()  {}
func (*Identifier) exprNode()    {}
func (*BinaryExpr) exprNode()    {}
func (*UnaryExpr) exprNode()     {}
func (*TernaryExpr) exprNode()   {}
func (*CallExpr) exprNode()      {}

func (*AssignmentStmt) stmtNode() {}
func (*ExpressionStmt) stmtNode() {}
func (*IfStmt) stmtNode()         {}

// Program is a parsed script
type Program struct {
	Declaration *CallExpr
	Statements  []Stmt
	NodeCount   int
}

// Dump renders a node as an s-expression. Two structurally identical trees dump identically.
func Dump(n Node) string {
	var sb strings.Builder
	dump(&sb, n)
	return sb.String()
}

// Dump renders the whole program, declaration first
func (p *Program) Dump() string {
	var sb strings.Builder
	if p.Declaration != nil {
		sb.WriteString("decl ")
		dump(&sb, p.Declaration)
		sb.WriteByte('\n')
	}
	for _, s := range p.Statements {
		dump(&sb, s)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func dump(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *NumberLiteral:
		sb.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
	case *StringLiteral:
		sb.WriteString(strconv.Quote(n.Value))
	case *BoolLiteral:
		sb.WriteString(strconv.FormatBool(n.Value))
	case *ColorLiteral:
		sb.WriteString(n.Value.Hex())
	case *Identifier:
		sb.WriteString(n.Name)
	case *BinaryExpr:
		fmt.Fprintf(sb, "(%s ", n.Op)
		dump(sb, n.Left)
		sb.WriteByte(' ')
		dump(sb, n.Right)
		sb.WriteByte(')')
	case *UnaryExpr:
		fmt.Fprintf(sb, "(%s ", n.Op)
		dump(sb, n.Operand)
		sb.WriteByte(')')
	case *TernaryExpr:
		sb.WriteString("(? ")
		dump(sb, n.Cond)
		sb.WriteByte(' ')
		dump(sb, n.IfTrue)
		sb.WriteByte(' ')
		dump(sb, n.IfFalse)
		sb.WriteByte(')')
	case *CallExpr:
		fmt.Fprintf(sb, "(call %s", n.Name)
		for _, a := range n.Args {
			sb.WriteByte(' ')
			dump(sb, a)
		}
		names := make([]string, 0, len(n.Named))
		for k := range n.Named {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(sb, " %s=", k)
			dump(sb, n.Named[k])
		}
		sb.WriteByte(')')
	case *AssignmentStmt:
		fmt.Fprintf(sb, "(= %s ", n.Name)
		dump(sb, n.Value)
		sb.WriteByte(')')
	case *ExpressionStmt:
		dump(sb, n.Expr)
	case *IfStmt:
		sb.WriteString("(if ")
		dump(sb, n.Cond)
		sb.WriteString(" (then")
		for _, s := range n.Then {
			sb.WriteByte(' ')
			dump(sb, s)
		}
		sb.WriteByte(')')
		if n.Else != nil {
			sb.WriteString(" (else")
			for _, s := range n.Else {
				sb.WriteByte(' ')
				dump(sb, s)
			}
			sb.WriteByte(')')
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%T>", n)
	}
}

// Walk visits every node of the program depth-first in source order, declaration first
func Walk(p *Program, visit func(Node)) {
	if p.Declaration != nil {
		walk(p.Declaration, visit)
	}
	for _, s := range p.Statements {
		walk(s, visit)
	}
}

func walk(n Node, visit func(Node)) {
	visit(n)
	switch n := n.(type) {
	case *BinaryExpr:
		walk(n.Left, visit)
		walk(n.Right, visit)
	case *UnaryExpr:
		walk(n.Operand, visit)
	case *TernaryExpr:
		walk(n.Cond, visit)
		walk(n.IfTrue, visit)
		walk(n.IfFalse, visit)
	case *CallExpr:
		for _, a := range n.Args {
			walk(a, visit)
		}
		names := make([]string, 0, len(n.Named))
		for k := range n.Named {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			walk(n.Named[k], visit)
		}
	case *AssignmentStmt:
		walk(n.Value, visit)
	case *ExpressionStmt:
		walk(n.Expr, visit)
	case *IfStmt:
		walk(n.Cond, visit)
		for _, s := range n.Then {
			walk(s, visit)
		}
		for _, s := range n.Else {
			walk(s, visit)
		}
	}
}
