package relevance

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize applies NFKC normalisation and Unicode case folding.
func Normalize(s string) string {
	return folder.String(norm.NFKC.String(s))
}

// Tokenize splits normalised text into word tokens, dropping stop words.
// Han and kana characters become one token each since those scripts do not
// separate words with spaces.
func Tokenize(s string, stop map[string]bool) []string {
	s = Normalize(s)
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		w := cur.String()
		cur.Reset()
		if !stop[w] {
			out = append(out, w)
		}
	}
	for _, r := range s {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana):
			flush()
			w := string(r)
			if !stop[w] {
				out = append(out, w)
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

// stopWords per ISO 639-1 code; deliberately small, high-frequency lists.
var stopWords = map[string][]string{
	"en": {"a", "an", "the", "of", "in", "on", "at", "to", "for", "by", "with", "and", "or", "is", "are",
		"was", "were", "be", "been", "it", "its", "this", "that", "these", "those", "from", "as", "what",
		"which", "who", "how", "many", "much", "do", "does", "did", "show", "list", "give", "me", "all",
		"each", "per", "than", "have", "has", "there"},
	"es": {"el", "la", "los", "las", "de", "del", "en", "y", "o", "un", "una", "que", "por", "para",
		"con", "es", "son", "al", "cuántos", "cuál", "qué", "se", "su", "sus"},
	"fr": {"le", "la", "les", "de", "des", "du", "un", "une", "et", "ou", "en", "dans", "pour", "par",
		"avec", "est", "sont", "que", "qui", "quel", "quelle", "au", "aux", "combien"},
	"de": {"der", "die", "das", "den", "dem", "des", "ein", "eine", "und", "oder", "in", "im", "mit",
		"von", "für", "ist", "sind", "wie", "viele", "welche", "zu", "auf", "nach"},
	"pt": {"o", "a", "os", "as", "de", "do", "da", "dos", "das", "em", "no", "na", "e", "ou", "um",
		"uma", "que", "por", "para", "com", "quantos", "qual"},
	"it": {"il", "lo", "la", "i", "gli", "le", "di", "del", "della", "in", "e", "o", "un", "una",
		"che", "per", "con", "quanti", "quale"},
	"fi": {"ja", "on", "ovat", "se", "ne", "että", "kuin", "mikä", "mitkä", "kuinka", "monta", "tai",
		"ei", "kanssa", "jokainen"},
	"tr": {"ve", "veya", "bir", "bu", "şu", "için", "ile", "de", "da", "mi", "mı", "kaç", "hangi",
		"olan", "en", "her"},
	"hu": {"a", "az", "egy", "és", "vagy", "hogy", "nem", "van", "hány", "melyik", "minden", "is"},
	"ru": {"и", "в", "во", "не", "на", "с", "со", "по", "для", "что", "как", "сколько", "какие",
		"это", "из", "у", "к", "от", "или", "все"},
	"uk": {"і", "й", "в", "у", "на", "з", "із", "для", "що", "як", "скільки", "які", "це", "або", "всі"},
	"pl": {"i", "w", "z", "na", "do", "dla", "że", "jak", "ile", "które", "jest", "są", "lub", "to"},
	"cs": {"a", "v", "ve", "na", "z", "do", "pro", "že", "jak", "kolik", "které", "je", "jsou", "nebo"},
	"et": {"ja", "on", "ei", "et", "kui", "mis", "kes", "mitu", "või", "iga"},
}

// minimalEnglish is used when no language could be determined.
var minimalEnglish = []string{"a", "an", "the", "of", "in", "on", "to", "for", "and", "or", "is", "are", "by", "with"}

// StopWords returns the union of the stop lists for langs, or a minimal
// English list when none of them is known.
func StopWords(langs ...string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range langs {
		for _, w := range stopWords[baseLang(l)] {
			set[Normalize(w)] = true
		}
	}
	if len(set) == 0 {
		for _, w := range minimalEnglish {
			set[w] = true
		}
	}
	return set
}

// morphRich lists agglutinative or heavily inflected languages whose
// lexical overlap with schema names is weak.
var morphRich = map[string]bool{
	"fi": true, "hu": true, "tr": true, "et": true, "ko": true, "ja": true,
	"ru": true, "pl": true, "cs": true, "uk": true, "ta": true,
}

// MorphologicallyRich reports whether lang is in the morphologically rich set.
func MorphologicallyRich(lang string) bool {
	return morphRich[baseLang(lang)]
}

func baseLang(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	return l
}

// DetectLanguage guesses the ISO 639-1 code of s from its script and, for
// Latin text, from stop-word hits. It returns "" when unsure.
func DetectLanguage(s string) string {
	counts := map[*unicode.RangeTable]int{}
	ukrainian := false
	for _, r := range s {
		for _, t := range []*unicode.RangeTable{unicode.Cyrillic, unicode.Hangul, unicode.Hiragana, unicode.Katakana, unicode.Han, unicode.Tamil, unicode.Latin} {
			if unicode.Is(t, r) {
				counts[t]++
				break
			}
		}
		switch r {
		case 'і', 'ї', 'є', 'ґ', 'І', 'Ї', 'Є', 'Ґ':
			ukrainian = true
		}
	}
	switch {
	case counts[unicode.Hangul] > 0:
		return "ko"
	case counts[unicode.Hiragana]+counts[unicode.Katakana] > 0:
		return "ja"
	case counts[unicode.Han] > 0:
		return "zh"
	case counts[unicode.Tamil] > 0:
		return "ta"
	case counts[unicode.Cyrillic] > counts[unicode.Latin]:
		if ukrainian {
			return "uk"
		}
		return "ru"
	case counts[unicode.Latin] == 0:
		return ""
	}

	words := Tokenize(s, nil)
	best, bestHits := "", 0
	for _, lang := range []string{"en", "es", "fr", "de", "pt", "it", "fi", "tr", "hu", "pl", "cs", "et"} {
		stop := StopWords(lang)
		hits := 0
		for _, w := range words {
			if stop[w] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	if bestHits == 0 {
		return ""
	}
	return best
}
