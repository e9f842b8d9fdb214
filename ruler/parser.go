package ruler

// Parse builds the expression tree of a rule.
//
// The grammar has no operator precedence. An expression is an optional '!',
// an element, then optionally an operator and a second element, then
// optionally a logical connective followed by another expression:
//
//	expr    := ['!'] element [ op ( element | '!' expr ) [ ('&'|'|') expr ] ]
//	element := number | string | '(' expr ')'
//
// An element pair binds before the connective that follows it, which then
// takes the rest of the chain: (a)&(b)|(c) is ((a)&(b)) | (c) and
// a=1&b=2|c=3 is (a=1) & ((b=2)|(c=3)).
func Parse(expr string) (Node, error) {
	tokens, err := Lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, syntaxError(expr, tok.Pos, "garbage at end of expression: %q", tok.Text)
	}
	return node, nil
}

type parser struct {
	expr   string
	tokens []Token
	pos    int
	depth  int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

// atEnd reports whether the current (sub)expression is complete: end of
// input, or the closing parenthesis of the enclosing group.
func (p *parser) atEnd() bool {
	switch p.peek().Type {
	case TokenEOF:
		return true
	case TokenRParen:
		return p.depth > 0
	default:
		return false
	}
}

func (p *parser) parseExpr() (Node, error) {
	negate := false
	if p.peek().Type == TokenNot {
		p.next()
		negate = true
	}

	left, err := p.parseElement()
	if err != nil {
		return nil, err
	}

	if p.atEnd() {
		if isScalar(left) {
			return nil, typeError(p.expr, "Cannot use num/string as boolean")
		}
		if negate {
			return &Negation{X: left}, nil
		}
		return left, nil
	}

	op := p.next()
	switch op.Type {
	case TokenCompare, TokenLogic:
	case TokenNot:
		return nil, syntaxError(p.expr, op.Pos, "incorrect operator '!'")
	default:
		return nil, syntaxError(p.expr, op.Pos, "operator not found")
	}

	var right Node
	if p.peek().Type == TokenNot {
		p.next()
		if op.Type != TokenLogic {
			return nil, typeError(p.expr, "Mixing boolean and comparison")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		right = &Negation{X: inner}
	} else {
		right, err = p.parseElement()
		if err != nil {
			return nil, err
		}
	}

	var node Node
	if op.Type == TokenLogic {
		node = &Logical{Op: op.Text, Left: left, Right: right}
	} else {
		node = &Comparison{Op: op.Text, Left: left, Right: right}
	}
	if negate {
		node = &Negation{X: node}
	}

	if p.atEnd() {
		return node, nil
	}

	conn := p.next()
	if conn.Type != TokenLogic {
		return nil, syntaxError(p.expr, conn.Pos, "garbage at end of expression: %q", conn.Text)
	}
	rest, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Logical{Op: conn.Text, Left: node, Right: rest, Chained: true}, nil
}

func (p *parser) parseElement() (Node, error) {
	tok := p.next()
	switch tok.Type {
	case TokenNumber:
		return &Number{Text: tok.Text}, nil
	case TokenString:
		return &String{Value: tok.Text}, nil
	case TokenLParen:
		p.depth++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().Type != TokenRParen {
			return nil, syntaxError(p.expr, tok.Pos, "no closing ()")
		}
		p.next()
		p.depth--
		return inner, nil
	default:
		return nil, syntaxError(p.expr, tok.Pos, "number/string not found")
	}
}
