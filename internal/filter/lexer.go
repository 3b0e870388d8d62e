package filter

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokIdent  tokenKind = iota // field name or keyword
	tokOp                      // == != >= <= > <
	tokAnd                     // && AND
	tokOr                      // || OR
	tokNot                     // ! NOT
	tokString                  // "..." or '...'
	tokNumber                  // 42 | 3.14
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case ch == '&' || ch == '|':
			if i+1 >= len(src) || src[i+1] != ch {
				return nil, fmt.Errorf("filter: unexpected %q at %d", ch, i)
			}
			kind := tokAnd
			if ch == '|' {
				kind = tokOr
			}
			toks = append(toks, token{kind, src[i : i+2], i})
			i += 2
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, src[i : i+2], i})
				i += 2
				continue
			}
			switch ch {
			case '!':
				toks = append(toks, token{tokNot, "!", i})
			case '=':
				return nil, fmt.Errorf("filter: single '=' at %d (use ==)", i)
			default:
				toks = append(toks, token{tokOp, string(ch), i})
			}
			i++
		case ch == '"' || ch == '\'':
			end := strings.IndexByte(src[i+1:], ch)
			if end < 0 {
				return nil, fmt.Errorf("filter: unterminated string at %d", i)
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
			start := i
			i++
			for i < len(src) && (src[i] == '.' || (src[i] >= '0' && src[i] <= '9')) {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case ch == '_' || unicode.IsLetter(rune(ch)):
			start := i
			for i < len(src) && (src[i] == '_' || unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i]))) {
				i++
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{tokAnd, word, start})
			case "OR":
				toks = append(toks, token{tokOr, word, start})
			case "NOT":
				toks = append(toks, token{tokNot, word, start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("filter: unexpected %q at %d", ch, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}
