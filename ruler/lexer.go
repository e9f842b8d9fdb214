package ruler

import "fmt"

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenLParen
	TokenRParen
	TokenNot
	TokenCompare
	TokenLogic
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of expression"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenNot:
		return "'!'"
	case TokenCompare:
		return "comparison operator"
	case TokenLogic:
		return "logical operator"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// Token is a lexeme with its byte offset in the expression.
type Token struct {
	Type TokenType
	Text string
	Pos  int
}

// Lex splits an expression into tokens. Spaces outside strings are skipped.
// The returned slice always ends with a TokenEOF.
func Lex(expr string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case isNumberChar(c):
			start := i
			for i < len(expr) && isNumberChar(expr[i]) {
				i++
			}
			tokens = append(tokens, Token{Type: TokenNumber, Text: expr[start:i], Pos: start})
		case c == '"':
			start := i
			i++
			for i < len(expr) && expr[i] != '"' {
				i++
			}
			if i == len(expr) {
				return nil, syntaxError(expr, i, "closing '\"' not found")
			}
			tokens = append(tokens, Token{Type: TokenString, Text: expr[start+1 : i], Pos: start})
			i++
		case c == '(':
			tokens = append(tokens, Token{Type: TokenLParen, Text: "(", Pos: i})
			i++
		case c == ')':
			tokens = append(tokens, Token{Type: TokenRParen, Text: ")", Pos: i})
			i++
		case c == '!':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenCompare, Text: "!=", Pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, Token{Type: TokenNot, Text: "!", Pos: i})
			i++
		case c == '<' || c == '>':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenCompare, Text: expr[i : i+2], Pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, Token{Type: TokenCompare, Text: string(c), Pos: i})
			i++
		case c == '=' || c == '~':
			tokens = append(tokens, Token{Type: TokenCompare, Text: string(c), Pos: i})
			i++
		case c == '&' || c == '|':
			tokens = append(tokens, Token{Type: TokenLogic, Text: string(c), Pos: i})
			i++
		default:
			return nil, syntaxError(expr, i, "unexpected character '%c'", c)
		}
	}
	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(expr)})
	return tokens, nil
}

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.'
}
