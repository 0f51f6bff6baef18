package dialect

import (
	"strings"
)

// Function concepts with differing spellings across dialects.
const (
	fnLength    = "length"
	fnNow       = "now"
	fnSubstring = "substring"
	fnIfNull    = "ifnull"
)

// functionConcepts maps every known spelling of a renamed function to its concept.
var functionConcepts = map[string]string{
	"LENGTH":    fnLength,
	"LEN":       fnLength,
	"SUBSTRING": fnSubstring,
	"SUBSTR":    fnSubstring,
	"IFNULL":    fnIfNull,
	"NVL":       fnIfNull,
	"ISNULL":    fnIfNull,
}

// rewriteFunctions renames functions whose spelling differs per dialect and
// replaces current-time calls as a whole.
func (r *Rules) rewriteFunctions(toks []token) ([]token, error) {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokWord {
			continue
		}
		if p := prevSig(toks, i); p >= 0 && toks[p].isPunct(".") {
			continue
		}

		if end, ok := nowCall(toks, i); ok {
			target := r.functions[fnNow]
			if strings.EqualFold(render(toks[i:end+1]), target) {
				i = end
				continue
			}
			repl := lex(target)
			toks = splice(toks, i, end, repl)
			i += len(repl) - 1
			continue
		}

		concept, ok := functionConcepts[strings.ToUpper(t.text)]
		if !ok {
			continue
		}
		open := nextSig(toks, i)
		if open < 0 || !toks[open].isPunct("(") {
			continue
		}
		closeIdx := matchParen(toks, open)
		if closeIdx < 0 {
			continue
		}
		// one-argument ISNULL is a null test, not a fallback
		if strings.EqualFold(t.text, "ISNULL") && topLevelCommas(toks, open, closeIdx) != 1 {
			continue
		}
		if concept == fnSubstring && !r.SubstringFromFor {
			toks = substringArgs(toks, open, closeIdx)
		}
		if target := r.functions[concept]; !strings.EqualFold(t.text, target) {
			toks[i] = word(target)
		}
	}
	return toks, nil
}

// nowCall recognises NOW(), GETDATE(), SYSDATE and DATETIME('now') starting
// at i and returns the index of their last token.
func nowCall(toks []token, i int) (int, bool) {
	name := strings.ToUpper(toks[i].text)
	open := nextSig(toks, i)
	hasParen := open >= 0 && toks[open].isPunct("(")
	switch name {
	case "NOW", "GETDATE":
		if !hasParen {
			return 0, false
		}
		c := nextSig(toks, open)
		if c < 0 || !toks[c].isPunct(")") {
			return 0, false
		}
		return c, true
	case "SYSDATE":
		if hasParen {
			if c := nextSig(toks, open); c >= 0 && toks[c].isPunct(")") {
				return c, true
			}
		}
		return i, true
	case "DATETIME":
		if !hasParen {
			return 0, false
		}
		arg := nextSig(toks, open)
		if arg < 0 || toks[arg].kind != tokString || !strings.EqualFold(toks[arg].text, "'now'") {
			return 0, false
		}
		c := nextSig(toks, arg)
		if c < 0 || !toks[c].isPunct(")") {
			return 0, false
		}
		return c, true
	}
	return 0, false
}

func topLevelCommas(toks []token, open, closeIdx int) int {
	n, d := 0, 0
	for j := open + 1; j < closeIdx; j++ {
		switch {
		case toks[j].isPunct("("):
			d++
		case toks[j].isPunct(")"):
			d--
		case d == 0 && toks[j].isPunct(","):
			n++
		}
	}
	return n
}

// substringArgs turns SUBSTRING(x FROM a FOR b) into positional arguments.
func substringArgs(toks []token, open, closeIdx int) []token {
	d := 0
	for j := open + 1; j < closeIdx; j++ {
		switch {
		case toks[j].isPunct("("):
			d++
		case toks[j].isPunct(")"):
			d--
		case d == 0 && (toks[j].is("FROM") || toks[j].is("FOR")):
			toks[j] = punct(",")
			if p := j - 1; p > open && toks[p].kind == tokSpace {
				toks[p].text = ""
			}
		}
	}
	return toks
}
