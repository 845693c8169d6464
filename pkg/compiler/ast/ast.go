// Package ast defines the unlinked syntax tree produced by the parser.
// Expression and statement kinds form closed sets: every node type lives in
// this package and later stages switch over them exhaustively.
package ast

import (
	"bytes"
	"strings"

	"github.com/zurustar/clamb/pkg/compiler/lexer"
)

type Node interface {
	TokenLiteral() string
	String() string
	Pos() lexer.Token
}

type Statement interface {
	Node
	statementNode()
}

type Expression interface {
	Node
	expressionNode()
}

// Mask carries linker annotations on identifiers.
type Mask uint8

const (
	// MaskDeclTarget marks the left operand of a declaration initializer.
	MaskDeclTarget Mask = 1 << iota
)

// Program is the root node
type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// TypeSpec is a written type such as "ref String" or "int&".
type TypeSpec struct {
	Token lexer.Token // first token of the type
	Name  string
	Ref   int
}

func (t *TypeSpec) String() string {
	return strings.Repeat("ref ", t.Ref) + t.Name
}

// ----------------------------------------------------------------------------
// Expressions

// Identifier
type Identifier struct {
	Token lexer.Token
	Value string
	Mask  Mask
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }
func (i *Identifier) Pos() lexer.Token     { return i.Token }

// IntegerLiteral
type IntegerLiteral struct {
	Token lexer.Token
	Value int64
	Long  bool // L suffix or too large for int
}

func (il *IntegerLiteral) expressionNode()      {}
func (il *IntegerLiteral) TokenLiteral() string { return il.Token.Literal }
func (il *IntegerLiteral) String() string       { return il.Token.Literal }
func (il *IntegerLiteral) Pos() lexer.Token     { return il.Token }

// FloatLiteral
type FloatLiteral struct {
	Token  lexer.Token
	Value  float64
	Single bool // f suffix
}

func (fl *FloatLiteral) expressionNode()      {}
func (fl *FloatLiteral) TokenLiteral() string { return fl.Token.Literal }
func (fl *FloatLiteral) String() string       { return fl.Token.Literal }
func (fl *FloatLiteral) Pos() lexer.Token     { return fl.Token }

// StringLiteral
type StringLiteral struct {
	Token lexer.Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string       { return `"` + sl.Value + `"` }
func (sl *StringLiteral) Pos() lexer.Token     { return sl.Token }

// BooleanLiteral
type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string       { return bl.Token.Literal }
func (bl *BooleanLiteral) Pos() lexer.Token     { return bl.Token }

// PrefixExpression is a unary operator application: -x, !x, ~x, &x, *x.
type PrefixExpression struct {
	Token    lexer.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) Pos() lexer.Token     { return pe.Token }
func (pe *PrefixExpression) String() string {
	return "(" + pe.Operator + pe.Right.String() + ")"
}

// InfixExpression is a binary operator application.
type InfixExpression struct {
	Token    lexer.Token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) Pos() lexer.Token     { return ie.Token }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// AssignExpression is "target op value" where op is "=" or a compound form like "+=".
type AssignExpression struct {
	Token    lexer.Token
	Target   Expression
	Operator string
	Value    Expression
}

func (ae *AssignExpression) expressionNode()      {}
func (ae *AssignExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *AssignExpression) Pos() lexer.Token     { return ae.Token }
func (ae *AssignExpression) String() string {
	return "(" + ae.Target.String() + " " + ae.Operator + " " + ae.Value.String() + ")"
}

// ConditionalExpression is "cond ? then : else".
type ConditionalExpression struct {
	Token       lexer.Token // the '?'
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (ce *ConditionalExpression) expressionNode()      {}
func (ce *ConditionalExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ConditionalExpression) Pos() lexer.Token     { return ce.Token }
func (ce *ConditionalExpression) String() string {
	return "(" + ce.Condition.String() + " ? " + ce.Consequence.String() + " : " + ce.Alternative.String() + ")"
}

// CallExpression is a postfix call; Function may be any expression.
type CallExpression struct {
	Token     lexer.Token // the '('
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) Pos() lexer.Token     { return ce.Token }
func (ce *CallExpression) String() string {
	args := make([]string, len(ce.Arguments))
	for i, a := range ce.Arguments {
		args[i] = a.String()
	}
	return ce.Function.String() + "(" + strings.Join(args, ", ") + ")"
}

// IndexExpression is a postfix index.
type IndexExpression struct {
	Token lexer.Token // the '['
	Left  Expression
	Index Expression
}

func (ie *IndexExpression) expressionNode()      {}
func (ie *IndexExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IndexExpression) Pos() lexer.Token     { return ie.Token }
func (ie *IndexExpression) String() string {
	return "(" + ie.Left.String() + "[" + ie.Index.String() + "])"
}

// ----------------------------------------------------------------------------
// Statements

// ExpressionStatement holds a comma separated expression list.
type ExpressionStatement struct {
	Token       lexer.Token
	Expressions []Expression
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Literal }
func (es *ExpressionStatement) Pos() lexer.Token     { return es.Token }
func (es *ExpressionStatement) String() string {
	parts := make([]string, len(es.Expressions))
	for i, e := range es.Expressions {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ") + ";"
}

// VarDeclaration declares one or more variables of the same type.
// Each declarator is an Identifier or an AssignExpression whose target is
// the Identifier; anything else is rejected by the linker.
type VarDeclaration struct {
	Token       lexer.Token
	Type        *TypeSpec
	Declarators []Expression
}

func (vd *VarDeclaration) statementNode()       {}
func (vd *VarDeclaration) TokenLiteral() string { return vd.Token.Literal }
func (vd *VarDeclaration) Pos() lexer.Token     { return vd.Token }
func (vd *VarDeclaration) String() string {
	parts := make([]string, len(vd.Declarators))
	for i, d := range vd.Declarators {
		parts[i] = d.String()
	}
	return vd.Type.String() + " " + strings.Join(parts, ", ") + ";"
}

// Parameter is one formal parameter of a function.
type Parameter struct {
	Type *TypeSpec
	Name *Identifier
}

// FunctionDeclaration is a function definition, or a prototype when Body is nil.
type FunctionDeclaration struct {
	Token      lexer.Token
	ReturnType *TypeSpec
	Name       *Identifier
	Parameters []*Parameter
	Body       *BlockStatement
}

func (fd *FunctionDeclaration) statementNode()       {}
func (fd *FunctionDeclaration) TokenLiteral() string { return fd.Token.Literal }
func (fd *FunctionDeclaration) Pos() lexer.Token     { return fd.Token }
func (fd *FunctionDeclaration) String() string {
	params := make([]string, len(fd.Parameters))
	for i, p := range fd.Parameters {
		params[i] = p.Type.String() + " " + p.Name.Value
	}
	head := fd.ReturnType.String() + " " + fd.Name.Value + "(" + strings.Join(params, ", ") + ")"
	if fd.Body == nil {
		return head + ";"
	}
	return head + " " + fd.Body.String()
}

// BlockStatement
type BlockStatement struct {
	Token      lexer.Token // the '{'
	Statements []Statement
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) Pos() lexer.Token     { return bs.Token }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("}")
	return out.String()
}

// IfStatement
type IfStatement struct {
	Token       lexer.Token
	Condition   Expression
	Consequence Statement
	Alternative Statement // nil without else
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) Pos() lexer.Token     { return is.Token }
func (is *IfStatement) String() string {
	s := "if (" + is.Condition.String() + ") " + is.Consequence.String()
	if is.Alternative != nil {
		s += " else " + is.Alternative.String()
	}
	return s
}

// WhileStatement
type WhileStatement struct {
	Token     lexer.Token
	Condition Expression
	Body      Statement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) Pos() lexer.Token     { return ws.Token }
func (ws *WhileStatement) String() string {
	return "while (" + ws.Condition.String() + ") " + ws.Body.String()
}

// ForStatement: every clause is optional.
type ForStatement struct {
	Token     lexer.Token
	Init      Statement    // *VarDeclaration or *ExpressionStatement
	Condition Expression   // nil means true
	Post      []Expression // comma separated
	Body      Statement
}

func (fs *ForStatement) statementNode()       {}
func (fs *ForStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForStatement) Pos() lexer.Token     { return fs.Token }
func (fs *ForStatement) String() string {
	var init, cond string
	if fs.Init != nil {
		init = strings.TrimSuffix(fs.Init.String(), ";")
	}
	if fs.Condition != nil {
		cond = fs.Condition.String()
	}
	post := make([]string, len(fs.Post))
	for i, p := range fs.Post {
		post[i] = p.String()
	}
	return "for (" + init + "; " + cond + "; " + strings.Join(post, ", ") + ") " + fs.Body.String()
}

// ReturnStatement
type ReturnStatement struct {
	Token lexer.Token
	Value Expression // nil for "return;"
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) Pos() lexer.Token     { return rs.Token }
func (rs *ReturnStatement) String() string {
	if rs.Value == nil {
		return "return;"
	}
	return "return " + rs.Value.String() + ";"
}

// BreakStatement
type BreakStatement struct {
	Token lexer.Token
}

func (bs *BreakStatement) statementNode()       {}
func (bs *BreakStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BreakStatement) Pos() lexer.Token     { return bs.Token }
func (bs *BreakStatement) String() string       { return "break;" }

// ContinueStatement
type ContinueStatement struct {
	Token lexer.Token
}

func (cs *ContinueStatement) statementNode()       {}
func (cs *ContinueStatement) TokenLiteral() string { return cs.Token.Literal }
func (cs *ContinueStatement) Pos() lexer.Token     { return cs.Token }
func (cs *ContinueStatement) String() string       { return "continue;" }
