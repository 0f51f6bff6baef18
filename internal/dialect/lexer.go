package dialect

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokComment
	tokWord
	tokNumber
	tokString
	tokQuoted
	tokPunct
)

// token is a lexical unit of a SQL statement. For tokQuoted, name holds
// the unescaped identifier.
type token struct {
	kind tokenKind
	text string
	name string
}

func (t token) is(word string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (t token) isPunct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

func (t token) significant() bool {
	return t.kind != tokSpace && t.kind != tokComment
}

var multiPunct = []string{"||", "<=", ">=", "<>", "!=", "::", "->>", "->"}

// lex splits a statement into tokens. It never fails: unterminated
// literals run to the end of the input.
func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			j := i
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			toks = append(toks, token{kind: tokSpace, text: src[i:j]})
			i = j
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				j = len(src) - i
			}
			toks = append(toks, token{kind: tokComment, text: src[i : i+j]})
			i += j
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := strings.Index(src[i+2:], "*/")
			end := len(src)
			if j >= 0 {
				end = i + 2 + j + 2
			}
			toks = append(toks, token{kind: tokComment, text: src[i:end]})
			i = end
		case c == '\'':
			end := scanDelimited(src, i, '\'')
			toks = append(toks, token{kind: tokString, text: src[i:end]})
			i = end
		case c == '"' || c == '`':
			end := scanDelimited(src, i, c)
			raw := src[i:end]
			toks = append(toks, token{kind: tokQuoted, text: raw, name: unquote(raw, c, c)})
			i = end
		case c == '[' && bracketIdentAt(src, i):
			end := scanDelimited(src, i, ']')
			raw := src[i:end]
			toks = append(toks, token{kind: tokQuoted, text: raw, name: unquote(raw, '[', ']')})
			i = end
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case isWordStart(src, i):
			j := i
			for j < len(src) {
				r, size := utf8.DecodeRuneInString(src[j:])
				if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$') {
					break
				}
				j += size
			}
			toks = append(toks, token{kind: tokWord, text: src[i:j]})
			i = j
		default:
			matched := false
			for _, p := range multiPunct {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, token{kind: tokPunct, text: p})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				_, size := utf8.DecodeRuneInString(src[i:])
				toks = append(toks, token{kind: tokPunct, text: src[i : i+size]})
				i += size
			}
		}
	}
	return toks
}

func isWordStart(src string, i int) bool {
	r, _ := utf8.DecodeRuneInString(src[i:])
	return unicode.IsLetter(r) || r == '_'
}

// scanDelimited returns the end offset of a literal opening at start whose
// closing delimiter is closer. A doubled closer is an escape.
func scanDelimited(src string, start int, closer byte) int {
	i := start + 1
	for i < len(src) {
		if src[i] == closer {
			if i+1 < len(src) && src[i+1] == closer {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(src)
}

// bracketIdentAt distinguishes [identifier] from array subscripts such as arr[1].
func bracketIdentAt(src string, i int) bool {
	end := strings.IndexByte(src[i:], ']')
	if end < 2 {
		return false
	}
	inner := src[i+1 : i+end]
	if strings.ContainsAny(inner, "[\n") {
		return false
	}
	r, _ := utf8.DecodeRuneInString(inner)
	return unicode.IsLetter(r) || r == '_' || r == ' '
}

func unquote(raw string, open, closer byte) string {
	if len(raw) < 2 || raw[0] != open {
		return raw
	}
	inner := raw[1:]
	if inner[len(inner)-1] == closer {
		inner = inner[:len(inner)-1]
	}
	return strings.ReplaceAll(inner, string([]byte{closer, closer}), string(closer))
}

func render(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

// depths returns the parenthesis depth at each token.
func depths(toks []token) []int {
	out := make([]int, len(toks))
	d := 0
	for i, t := range toks {
		if t.isPunct(")") && d > 0 {
			d--
		}
		out[i] = d
		if t.isPunct("(") {
			d++
		}
	}
	return out
}

// nextSig returns the index of the next significant token after i, or -1.
func nextSig(toks []token, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].significant() {
			return j
		}
	}
	return -1
}

// prevSig returns the index of the previous significant token before i, or -1.
func prevSig(toks []token, i int) int {
	for j := i - 1; j >= 0; j-- {
		if toks[j].significant() {
			return j
		}
	}
	return -1
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(toks []token, open int) int {
	d := 0
	for j := open; j < len(toks); j++ {
		switch {
		case toks[j].isPunct("("):
			d++
		case toks[j].isPunct(")"):
			d--
			if d == 0 {
				return j
			}
		}
	}
	return -1
}

// matchParenBack returns the index of the parenthesis opening the one at closeIdx.
func matchParenBack(toks []token, closeIdx int) int {
	d := 0
	for j := closeIdx; j >= 0; j-- {
		switch {
		case toks[j].isPunct(")"):
			d++
		case toks[j].isPunct("("):
			d--
			if d == 0 {
				return j
			}
		}
	}
	return -1
}

func word(text string) token   { return token{kind: tokWord, text: text} }
func space() token             { return token{kind: tokSpace, text: " "} }
func punct(text string) token  { return token{kind: tokPunct, text: text} }
func number(text string) token { return token{kind: tokNumber, text: text} }
