package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoSQL is returned when a generation reply holds no query.
	ErrNoSQL = errors.New("reply contains no SQL statement")
	// ErrUnparsable is returned when an auxiliary reply matches no known shape.
	ErrUnparsable = errors.New("unparsable agent reply")
)

var fenceRe = regexp.MustCompile("(?s)```([a-zA-Z]*)[ \t]*\r?\n(.*?)```")

// ExtractSQL returns the query and the surrounding explanation of a
// generation reply. A ```sql fence wins over other fences; a bare reply
// starting with SELECT or WITH is taken up to its first blank line.
func ExtractSQL(reply string) (sql, explanation string, err error) {
	var fallback []int
	for _, m := range fenceRe.FindAllStringSubmatchIndex(reply, -1) {
		lang := strings.ToLower(reply[m[2]:m[3]])
		body := strings.TrimSpace(reply[m[4]:m[5]])
		if lang == "sql" {
			return body, outside(reply, m[0], m[1]), nil
		}
		if fallback == nil && (lang == "" || lang == "postgresql" || lang == "postgres") && startsQuery(body) {
			fallback = m
		}
	}
	if fallback != nil {
		return strings.TrimSpace(reply[fallback[4]:fallback[5]]), outside(reply, fallback[0], fallback[1]), nil
	}

	trimmed := strings.TrimSpace(reply)
	if startsQuery(trimmed) {
		query, rest, _ := strings.Cut(trimmed, "\n\n")
		return strings.TrimSpace(query), strings.TrimSpace(rest), nil
	}
	return "", "", ErrNoSQL
}

func startsQuery(s string) bool {
	head := strings.ToUpper(strings.TrimLeft(s, " \t\r\n("))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

func outside(s string, start, end int) string {
	return strings.TrimSpace(strings.TrimSpace(s[:start]) + "\n" + strings.TrimSpace(s[end:]))
}

// jsonPayload finds the JSON value of a reply: a ```json fence, else the
// first balanced object or array.
func jsonPayload(reply string, open byte) string {
	for _, m := range fenceRe.FindAllStringSubmatch(reply, -1) {
		body := strings.TrimSpace(m[2])
		if strings.EqualFold(m[1], "json") || (body != "" && body[0] == open) {
			return body
		}
	}
	return balanced(reply, open)
}

func balanced(s string, open byte) string {
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// ParseList reads a list of strings from a JSON array or from bulleted or
// numbered lines.
func ParseList(reply string) ([]string, error) {
	if payload := jsonPayload(reply, '['); payload != "" {
		var items []string
		if err := json.Unmarshal([]byte(payload), &items); err == nil {
			return compact(items), nil
		}
	}
	var items []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || strings.HasSuffix(line, ":") {
			continue
		}
		items = append(items, bulletRe.ReplaceAllString(line, ""))
	}
	items = compact(items)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrUnparsable)
	}
	return items, nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// Verdict is the judgement of one numbered assertion
type Verdict struct {
	ID     int    `json:"id"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

var verdictLineRe = regexp.MustCompile(`(?i)^\s*(\d+)\s*[.):-]?\s*.*?\b(pass(?:ed)?|fail(?:ed)?|true|false|yes|no)\b`)

// ParseVerdicts reads n verdicts. Assertions the reply does not mention
// count as failed.
func ParseVerdicts(reply string, n int) ([]Verdict, error) {
	out := make([]Verdict, n)
	for i := range out {
		out[i] = Verdict{ID: i + 1, Reason: "no verdict returned"}
	}

	found := 0
	if payload := jsonPayload(reply, '{'); payload != "" {
		var body struct {
			Results []Verdict `json:"results"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err == nil {
			for _, v := range body.Results {
				if v.ID >= 1 && v.ID <= n {
					out[v.ID-1] = v
					found++
				}
			}
		}
	}
	if found == 0 {
		for _, line := range strings.Split(reply, "\n") {
			m := verdictLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			id, _ := strconv.Atoi(m[1])
			if id < 1 || id > n {
				continue
			}
			word := strings.ToLower(m[2])
			out[id-1] = Verdict{ID: id, Pass: strings.HasPrefix(word, "pass") || word == "true" || word == "yes"}
			found++
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: no verdicts", ErrUnparsable)
	}
	return out, nil
}

var intRe = regexp.MustCompile(`\d+`)

// ParseChoice reads the selector's pick among n candidates.
func ParseChoice(reply string, n int) (int, string, error) {
	if payload := jsonPayload(reply, '{'); payload != "" {
		var body struct {
			Choice *int   `json:"choice"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err == nil && body.Choice != nil {
			if *body.Choice < 0 || *body.Choice >= n {
				return 0, "", fmt.Errorf("%w: choice %d out of range", ErrUnparsable, *body.Choice)
			}
			return *body.Choice, body.Reason, nil
		}
	}
	if m := intRe.FindString(reply); m != "" {
		if i, err := strconv.Atoi(m); err == nil && i < n {
			return i, "", nil
		}
	}
	return 0, "", fmt.Errorf("%w: no choice", ErrUnparsable)
}

// Judgment is the supervisor's decision on a borderline candidate
type Judgment struct {
	Gold   bool
	Reason string
}

// ParseJudgment reads a GOLD or FAILED verdict. Ambiguous text fails.
func ParseJudgment(reply string) (Judgment, error) {
	if payload := jsonPayload(reply, '{'); payload != "" {
		var body struct {
			Verdict string `json:"verdict"`
			Reason  string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err == nil && body.Verdict != "" {
			switch strings.ToUpper(strings.TrimSpace(body.Verdict)) {
			case "GOLD":
				return Judgment{Gold: true, Reason: body.Reason}, nil
			case "FAILED", "FAIL":
				return Judgment{Reason: body.Reason}, nil
			}
		}
	}
	upper := strings.ToUpper(reply)
	gold, failed := strings.Contains(upper, "GOLD"), strings.Contains(upper, "FAIL")
	switch {
	case gold && !failed:
		return Judgment{Gold: true, Reason: strings.TrimSpace(reply)}, nil
	case failed && !gold:
		return Judgment{Reason: strings.TrimSpace(reply)}, nil
	}
	return Judgment{}, fmt.Errorf("%w: no verdict", ErrUnparsable)
}
