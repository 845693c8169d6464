package parser

import (
	"github.com/zurustar/clamb/pkg/compiler/ast"
	"github.com/zurustar/clamb/pkg/compiler/lexer"
)

// ParseProgram parses the entire program. It stops at the first error.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}

	for !p.curTokenIs(lexer.TOKEN_EOF) && !p.failed() {
		if p.curTokenIs(lexer.TOKEN_SEMICOLON) {
			p.nextToken()
			continue
		}

		stmt := p.parseStatement(true)
		if stmt == nil {
			break
		}
		program.Statements = append(program.Statements, stmt)
		p.nextToken()
	}

	return program
}

// parseStatement parses one statement starting at curToken and leaves
// curToken on its last token.
func (p *Parser) parseStatement(topLevel bool) ast.Statement {
	switch p.curToken.Type {
	case lexer.TOKEN_LBRACE:
		return p.parseBlockStatement()
	case lexer.TOKEN_IF:
		return p.parseIfStatement()
	case lexer.TOKEN_WHILE:
		return p.parseWhileStatement()
	case lexer.TOKEN_FOR:
		return p.parseForStatement()
	case lexer.TOKEN_RETURN:
		return p.parseReturnStatement()
	case lexer.TOKEN_BREAK:
		stmt := &ast.BreakStatement{Token: p.curToken}
		if !p.expectPeek(lexer.TOKEN_SEMICOLON) {
			return nil
		}
		return stmt
	case lexer.TOKEN_CONTINUE:
		stmt := &ast.ContinueStatement{Token: p.curToken}
		if !p.expectPeek(lexer.TOKEN_SEMICOLON) {
			return nil
		}
		return stmt
	}

	if p.atDeclaration() {
		return p.parseDeclaration(topLevel)
	}
	return p.parseExpressionStatement()
}

// atDeclaration reports whether curToken starts a type: "ref T", or a type
// name followed by a name or by '&'.
func (p *Parser) atDeclaration() bool {
	if p.curTokenIs(lexer.TOKEN_REF) {
		return true
	}
	if !p.curTokenIs(lexer.TOKEN_IDENT) || !p.isType(p.curToken.Literal) {
		return false
	}
	next := p.peekToken
	return next.Type == lexer.TOKEN_IDENT || next.Is("&") || next.Is("&&")
}

// parseType parses a type at curToken and leaves curToken on its last token.
func (p *Parser) parseType() *ast.TypeSpec {
	spec := &ast.TypeSpec{Token: p.curToken}
	for p.curTokenIs(lexer.TOKEN_REF) {
		spec.Ref++
		p.nextToken()
	}
	if !p.curTokenIs(lexer.TOKEN_IDENT) || !p.isType(p.curToken.Literal) {
		p.errorf(p.curToken, "unknown data type '%s'", p.curToken.Literal)
		return nil
	}
	spec.Name = p.curToken.Literal
	for {
		switch {
		case p.peekToken.Is("&"):
			spec.Ref++
		case p.peekToken.Is("&&"):
			spec.Ref += 2
		default:
			return spec
		}
		p.nextToken()
	}
}

func (p *Parser) parseDeclaration(topLevel bool) ast.Statement {
	start := p.curToken
	spec := p.parseType()
	if spec == nil {
		return nil
	}
	if !p.expectPeek(lexer.TOKEN_IDENT) {
		return nil
	}

	if p.peekTokenIs(lexer.TOKEN_LPAREN) {
		if !topLevel {
			p.errorf(p.curToken, "function '%s' must be declared at the top level", p.curToken.Literal)
			return nil
		}
		return p.parseFunctionDeclaration(start, spec)
	}

	decl := &ast.VarDeclaration{Token: start, Type: spec}
	list := p.parseCommaList()
	if list == nil {
		return nil
	}
	decl.Declarators = list
	if !p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.errorf(p.peekToken, "missing ';' after declaration of '%s'", list[len(list)-1].String())
		return nil
	}
	p.nextToken()
	return decl
}

func (p *Parser) parseFunctionDeclaration(start lexer.Token, ret *ast.TypeSpec) ast.Statement {
	fn := &ast.FunctionDeclaration{
		Token:      start,
		ReturnType: ret,
		Name:       &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal},
	}
	p.nextToken() // '('

	if p.peekTokenIs(lexer.TOKEN_RPAREN) {
		p.nextToken()
	} else {
		for {
			p.nextToken()
			spec := p.parseType()
			if spec == nil {
				return nil
			}
			if !p.expectPeek(lexer.TOKEN_IDENT) {
				return nil
			}
			fn.Parameters = append(fn.Parameters, &ast.Parameter{
				Type: spec,
				Name: &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal},
			})
			if p.peekTokenIs(lexer.TOKEN_COMMA) {
				p.nextToken()
				continue
			}
			if !p.expectPeek(lexer.TOKEN_RPAREN) {
				return nil
			}
			break
		}
	}

	if p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.nextToken()
		return fn
	}
	if !p.expectPeek(lexer.TOKEN_LBRACE) {
		return nil
	}
	fn.Body = p.parseBlockStatement()
	if fn.Body == nil {
		return nil
	}
	return fn
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{Token: p.curToken}
	p.nextToken()

	for !p.curTokenIs(lexer.TOKEN_RBRACE) {
		if p.curTokenIs(lexer.TOKEN_EOF) {
			p.errorf(p.curToken, "unbalanced '{' opened at line %d, column %d", block.Token.Line, block.Token.Column)
			return nil
		}
		if p.curTokenIs(lexer.TOKEN_SEMICOLON) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement(false)
		if stmt == nil {
			return nil
		}
		block.Statements = append(block.Statements, stmt)
		p.nextToken()
	}

	return block
}

func (p *Parser) parseExpressionStatement() ast.Statement {
	stmt := &ast.ExpressionStatement{Token: p.curToken}
	stmt.Expressions = p.parseCommaList()
	if stmt.Expressions == nil {
		return nil
	}
	if !p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		if p.peekTokenIs(lexer.TOKEN_RPAREN) {
			p.unexpected(p.peekToken)
		} else {
			p.errorf(p.peekToken, "missing ';' after expression")
		}
		return nil
	}
	p.nextToken()
	return stmt
}

// parseCondition parses "( expr )" after a keyword.
func (p *Parser) parseCondition() ast.Expression {
	if !p.expectPeek(lexer.TOKEN_LPAREN) {
		return nil
	}
	p.nextToken()
	cond := p.parseExpression(LOWEST)
	if cond == nil {
		return nil
	}
	if !p.expectPeek(lexer.TOKEN_RPAREN) {
		return nil
	}
	return cond
}

// parseBody parses the statement controlled by if/while/for.
func (p *Parser) parseBody() ast.Statement {
	p.nextToken()
	if p.curTokenIs(lexer.TOKEN_EOF) {
		p.unexpected(p.curToken)
		return nil
	}
	return p.parseStatement(false)
}

func (p *Parser) parseIfStatement() ast.Statement {
	stmt := &ast.IfStatement{Token: p.curToken}

	if stmt.Condition = p.parseCondition(); stmt.Condition == nil {
		return nil
	}
	if stmt.Consequence = p.parseBody(); stmt.Consequence == nil {
		return nil
	}

	if p.peekTokenIs(lexer.TOKEN_ELSE) {
		p.nextToken()
		if stmt.Alternative = p.parseBody(); stmt.Alternative == nil {
			return nil
		}
	}

	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	stmt := &ast.WhileStatement{Token: p.curToken}

	if stmt.Condition = p.parseCondition(); stmt.Condition == nil {
		return nil
	}
	if stmt.Body = p.parseBody(); stmt.Body == nil {
		return nil
	}

	return stmt
}

func (p *Parser) parseForStatement() ast.Statement {
	stmt := &ast.ForStatement{Token: p.curToken}

	if !p.expectPeek(lexer.TOKEN_LPAREN) {
		return nil
	}

	p.nextToken()
	if !p.curTokenIs(lexer.TOKEN_SEMICOLON) {
		if p.atDeclaration() {
			stmt.Init = p.parseDeclaration(false)
		} else {
			stmt.Init = p.parseExpressionStatement()
		}
		if stmt.Init == nil {
			return nil
		}
	}

	if !p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.nextToken()
		if stmt.Condition = p.parseExpression(LOWEST); stmt.Condition == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.TOKEN_SEMICOLON) {
		return nil
	}

	if !p.peekTokenIs(lexer.TOKEN_RPAREN) {
		p.nextToken()
		if stmt.Post = p.parseCommaList(); stmt.Post == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.TOKEN_RPAREN) {
		return nil
	}

	if stmt.Body = p.parseBody(); stmt.Body == nil {
		return nil
	}

	return stmt
}

func (p *Parser) parseReturnStatement() ast.Statement {
	stmt := &ast.ReturnStatement{Token: p.curToken}

	if p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.nextToken()
		return stmt
	}

	p.nextToken()
	if stmt.Value = p.parseExpression(LOWEST); stmt.Value == nil {
		return nil
	}
	if !p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.errorf(p.peekToken, "missing ';' after return value")
		return nil
	}
	p.nextToken()

	return stmt
}
