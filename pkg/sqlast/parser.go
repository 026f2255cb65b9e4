package sqlast

import "fmt"

// ParseError reports a syntax error with the offending token's position.
type ParseError struct {
	Msg string
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sql parse error at %d: %s", e.Pos, e.Msg)
}

// Parser builds a Statement AST from SQL source text via a recursive-
// descent, single-token-lookahead grammar.
type Parser struct {
	lex  *Lexer
	cur  Token
	peek Token
}

// Parse tokenizes and parses a single SQL statement. Trailing content
// after the first statement is rejected (SQL chaining / multiple
// statements is out of scope and must be surfaced as a parse error so
// the validator's "reject multiple statements" rule has something to
// catch).
func Parse(sql string) (*Statement, error) {
	p := &Parser{lex: NewLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	// allow one optional trailing semicolon, then require EOF.
	if p.cur.Type == SEMICOLON {
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.cur.Type != EOF {
		if p.cur.Type == SEMICOLON {
			return nil, &ParseError{Msg: "multiple statements are not permitted", Pos: p.cur.Pos}
		}
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected trailing token %q", p.cur.Literal), Pos: p.cur.Pos}
	}
	return stmt, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = p.peek
	p.peek = tok
	return nil
}

func (p *Parser) next() error { return p.advance() }

func (p *Parser) expect(t TokenType, what string) error {
	if p.cur.Type != t {
		return &ParseError{Msg: fmt.Sprintf("expected %s, got %q", what, p.cur.Literal), Pos: p.cur.Pos}
	}
	return p.next()
}

func (p *Parser) parseStatement() (*Statement, error) {
	stmt := &Statement{}

	switch p.cur.Type {
	case INSERT:
		stmt.Kind = KindInsert
		return stmt, nil
	case UPDATE:
		stmt.Kind = KindUpdate
		return stmt, nil
	case DELETE:
		stmt.Kind = KindDelete
		return stmt, nil
	case DROP:
		stmt.Kind = KindDrop
		return stmt, nil
	case ALTER:
		stmt.Kind = KindAlter
		return stmt, nil
	case CREATE:
		stmt.Kind = KindCreate
		return stmt, nil
	case GRANT:
		stmt.Kind = KindGrant
		return stmt, nil
	case REVOKE:
		stmt.Kind = KindRevoke
		return stmt, nil
	case TRUNCATE:
		stmt.Kind = KindTruncate
		return stmt, nil
	case CALL:
		stmt.Kind = KindCall
		return stmt, nil
	case EXPLAIN:
		stmt.Kind = KindExplain
		return stmt, nil
	}

	if p.cur.Type == WITH {
		wc, err := p.parseWithClause()
		if err != nil {
			return nil, err
		}
		stmt.With = wc
	}

	if p.cur.Type != SELECT && p.cur.Type != LPAREN {
		return nil, &ParseError{Msg: fmt.Sprintf("expected SELECT or '(', got %q", p.cur.Literal), Pos: p.cur.Pos}
	}

	body, err := p.parseQueryBody()
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	switch body.(type) {
	case *SetOperation:
		stmt.Kind = KindSetOperation
	default:
		stmt.Kind = KindSelect
	}
	return stmt, nil
}

func (p *Parser) parseWithClause() (*WithClause, error) {
	if err := p.next(); err != nil { // consume WITH
		return nil, err
	}
	wc := &WithClause{}
	if p.cur.Type == RECURSIVE {
		wc.Recursive = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	for {
		if p.cur.Type != IDENT {
			return nil, &ParseError{Msg: "expected CTE name", Pos: p.cur.Pos}
		}
		name := p.cur.Literal
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect(AS, "AS"); err != nil {
			return nil, err
		}
		if err := p.expect(LPAREN, "("); err != nil {
			return nil, err
		}
		body, err := p.parseQueryBody()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN, ")"); err != nil {
			return nil, err
		}
		wc.CTEs = append(wc.CTEs, &CTE{Name: name, Query: body})
		if p.cur.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return wc, nil
}

// parseQueryBody parses a SELECT (and any chained set operations) that
// may be wrapped in parentheses.
func (p *Parser) parseQueryBody() (Node, error) {
	left, err := p.parseQueryTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == UNION || p.cur.Type == INTERSECT || p.cur.Type == EXCEPT {
		var op SetOp
		switch p.cur.Type {
		case UNION:
			op = SetUnion
		case INTERSECT:
			op = SetIntersect
		case EXCEPT:
			op = SetExcept
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		all := false
		if p.cur.Type == ALL {
			all = true
			if err := p.next(); err != nil {
				return nil, err
			}
		} else if p.cur.Type == DISTINCT {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		right, err := p.parseQueryTerm()
		if err != nil {
			return nil, err
		}
		left = &SetOperation{Op: op, All: all, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseQueryTerm() (Node, error) {
	if p.cur.Type == LPAREN {
		if err := p.next(); err != nil {
			return nil, err
		}
		body, err := p.parseQueryBody()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN, ")"); err != nil {
			return nil, err
		}
		return body, nil
	}
	return p.parseSelect()
}

func (p *Parser) parseSelect() (*Select, error) {
	if err := p.expect(SELECT, "SELECT"); err != nil {
		return nil, err
	}
	sel := &Select{}
	if p.cur.Type == DISTINCT {
		sel.Distinct = true
		if err := p.next(); err != nil {
			return nil, err
		}
	} else if p.cur.Type == ALL {
		if err := p.next(); err != nil {
			return nil, err
		}
	}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	sel.Projection = items

	if p.cur.Type == FROM {
		if err := p.next(); err != nil {
			return nil, err
		}
		from, err := p.parseFromList()
		if err != nil {
			return nil, err
		}
		sel.From = from
	}

	if p.cur.Type == WHERE {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = expr
	}

	if p.cur.Type == GROUP {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect(BY, "BY"); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		sel.GroupBy = exprs
	}

	if p.cur.Type == HAVING {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = expr
	}

	if p.cur.Type == ORDER {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect(BY, "BY"); err != nil {
			return nil, err
		}
		items, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		sel.OrderBy = items
	}

	if p.cur.Type == LIMIT {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		sel.Limit = expr
	}

	if p.cur.Type == OFFSET {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		sel.Offset = expr
	}

	return sel, nil
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.cur.Type == ASTERISK {
		if err := p.next(); err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Star: true}, nil
	}
	// "table.*"
	if p.cur.Type == IDENT && p.peek.Type == DOT {
		save := p.cur.Literal
		// lookahead two tokens to check for ".*"
		startLex := *p.lex
		startCur, startPeek := p.cur, p.peek
		if err := p.next(); err != nil { // consume ident
			return SelectItem{}, err
		}
		if err := p.next(); err != nil { // consume dot
			return SelectItem{}, err
		}
		if p.cur.Type == ASTERISK {
			if err := p.next(); err != nil {
				return SelectItem{}, err
			}
			return SelectItem{Star: true, Qual: save}, nil
		}
		// not a star projection; restore and fall through to expression parse.
		*p.lex = startLex
		p.cur, p.peek = startCur, startPeek
	}

	expr, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	if p.cur.Type == AS {
		if err := p.next(); err != nil {
			return SelectItem{}, err
		}
		if p.cur.Type != IDENT {
			return SelectItem{}, &ParseError{Msg: "expected alias after AS", Pos: p.cur.Pos}
		}
		item.Alias = p.cur.Literal
		if err := p.next(); err != nil {
			return SelectItem{}, err
		}
	} else if p.cur.Type == IDENT {
		item.Alias = p.cur.Literal
		if err := p.next(); err != nil {
			return SelectItem{}, err
		}
	}
	return item, nil
}

func (p *Parser) parseFromList() ([]FromItem, error) {
	first, err := p.parseFromItem()
	if err != nil {
		return nil, err
	}
	items := []FromItem{first}
	for {
		join, ok, err := p.tryParseJoin()
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, join)
			continue
		}
		if p.cur.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			it, err := p.parseFromItem()
			if err != nil {
				return nil, err
			}
			items = append(items, it)
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) tryParseJoin() (FromItem, bool, error) {
	kind, matched, err := p.matchJoinKeyword()
	if err != nil {
		return FromItem{}, false, err
	}
	if !matched {
		return FromItem{}, false, nil
	}
	item, err := p.parseFromItem()
	if err != nil {
		return FromItem{}, false, err
	}
	spec := &JoinSpec{Kind: kind}
	if kind != JoinCross {
		if err := p.expect(ON, "ON"); err != nil {
			return FromItem{}, false, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return FromItem{}, false, err
		}
		spec.On = cond
	}
	item.Join = spec
	return item, true, nil
}

func (p *Parser) matchJoinKeyword() (JoinKind, bool, error) {
	switch p.cur.Type {
	case JOIN:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		return JoinInner, true, nil
	case INNER:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		if err := p.expect(JOIN, "JOIN"); err != nil {
			return 0, false, err
		}
		return JoinInner, true, nil
	case LEFT:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		if p.cur.Type == OUTER {
			if err := p.next(); err != nil {
				return 0, false, err
			}
		}
		if err := p.expect(JOIN, "JOIN"); err != nil {
			return 0, false, err
		}
		return JoinLeft, true, nil
	case RIGHT:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		if p.cur.Type == OUTER {
			if err := p.next(); err != nil {
				return 0, false, err
			}
		}
		if err := p.expect(JOIN, "JOIN"); err != nil {
			return 0, false, err
		}
		return JoinRight, true, nil
	case FULL:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		if p.cur.Type == OUTER {
			if err := p.next(); err != nil {
				return 0, false, err
			}
		}
		if err := p.expect(JOIN, "JOIN"); err != nil {
			return 0, false, err
		}
		return JoinFull, true, nil
	case CROSS:
		if err := p.next(); err != nil {
			return 0, false, err
		}
		if err := p.expect(JOIN, "JOIN"); err != nil {
			return 0, false, err
		}
		return JoinCross, true, nil
	}
	return 0, false, nil
}

func (p *Parser) parseFromItem() (FromItem, error) {
	if p.cur.Type == LPAREN {
		if err := p.next(); err != nil {
			return FromItem{}, err
		}
		body, err := p.parseQueryBody()
		if err != nil {
			return FromItem{}, err
		}
		if err := p.expect(RPAREN, ")"); err != nil {
			return FromItem{}, err
		}
		item := FromItem{Subquery: body}
		item.Alias = p.tryParseAlias()
		return item, nil
	}
	if p.cur.Type != IDENT {
		return FromItem{}, &ParseError{Msg: fmt.Sprintf("expected table name, got %q", p.cur.Literal), Pos: p.cur.Pos}
	}
	name := p.cur.Literal
	if err := p.next(); err != nil {
		return FromItem{}, err
	}
	item := FromItem{Table: name}
	item.Alias = p.tryParseAlias()
	return item, nil
}

// tryParseAlias consumes an optional "[AS] alias" and returns it, or "".
func (p *Parser) tryParseAlias() string {
	if p.cur.Type == AS {
		_ = p.next()
		if p.cur.Type == IDENT {
			a := p.cur.Literal
			_ = p.next()
			return a
		}
		return ""
	}
	if p.cur.Type == IDENT {
		a := p.cur.Literal
		_ = p.next()
		return a
	}
	return ""
}

func (p *Parser) parseOrderList() ([]OrderItem, error) {
	var items []OrderItem
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: expr}
		switch p.cur.Type {
		case ASC:
			if err := p.next(); err != nil {
				return nil, err
			}
		case DESC:
			item.Descending = true
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		if p.cur.Type == NULLS {
			if err := p.next(); err != nil {
				return nil, err
			}
			item.ExplicitNulls = true
			switch p.cur.Type {
			case FIRST:
				item.NullsFirst = true
				if err := p.next(); err != nil {
					return nil, err
				}
			case LAST:
				item.NullsFirst = false
				if err := p.next(); err != nil {
					return nil, err
				}
			default:
				return nil, &ParseError{Msg: "expected FIRST or LAST after NULLS", Pos: p.cur.Pos}
			}
		}
		items = append(items, item)
		if p.cur.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseExprList() ([]Expr, error) {
	var exprs []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.cur.Type == COMMA {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return exprs, nil
}
