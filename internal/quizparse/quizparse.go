// Package quizparse turns the semi-structured quiz text produced by
// the text generation service into validated question records.
//
// The expected input format is the one the generation prompt asks for:
//
//	Q1. What is the powerhouse of the cell?
//	a) Nucleus
//	b) Mitochondria
//	c) Ribosome
//	d) Golgi apparatus
//	Answer: b
//
// Parsing is lenient: blocks that are missing a prompt, do not carry
// exactly four options, or name an answer letter that is not among the
// options are dropped without error. The result may therefore be
// shorter than the requested question count.
package quizparse

import (
	"regexp"
	"strings"
)

// Question is one validated multiple-choice record. Options always
// holds exactly the four keys "a" through "d"; Answer is one of them.
type Question struct {
	Prompt  string            `json:"question"`
	Options map[string]string `json:"options"`
	Answer  string            `json:"answer"`
}

var (
	questionStart = regexp.MustCompile(`^Q\d+\.`)
	optionLine    = regexp.MustCompile(`^([a-d])\)\s*(.*)$`)
)

// Extract parses raw into question records, in order of appearance.
// expected is a quality signal only: fewer well-formed blocks than
// expected is not an error, and blocks beyond expected are still
// returned. Extract is pure; calling it twice on the same input yields
// the same result.
func Extract(raw string, expected int) []Question {
	_ = expected
	var out []Question
	var block []string

	flush := func() {
		if q, ok := parseBlock(block); ok {
			out = append(out, q)
		}
		block = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if questionStart.MatchString(line) {
			flush()
		}
		if line != "" {
			block = append(block, line)
		}
	}
	flush()
	return out
}

func parseBlock(lines []string) (Question, bool) {
	q := Question{Options: map[string]string{}}
	for _, line := range lines {
		switch {
		case questionStart.MatchString(line):
			if q.Prompt == "" {
				q.Prompt = strings.TrimSpace(questionStart.ReplaceAllString(line, ""))
			}
		case optionLine.MatchString(line):
			m := optionLine.FindStringSubmatch(line)
			q.Options[m[1]] = strings.TrimSpace(m[2])
		case strings.HasPrefix(strings.ToLower(line), "answer"):
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				q.Answer = normalizeAnswer(parts[1])
			}
		}
	}

	if q.Prompt == "" {
		return Question{}, false
	}
	if len(q.Options) != 4 {
		return Question{}, false
	}
	if len(q.Answer) != 1 {
		return Question{}, false
	}
	if _, ok := q.Options[q.Answer]; !ok {
		return Question{}, false
	}
	return q, true
}

// normalizeAnswer reduces "b", "b)" or "b) Mitochondria" to "b".
func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if len(s) == 1 {
		return s
	}
	if s[1] == ')' || s[1] == '.' || s[1] == ' ' {
		return s[:1]
	}
	return s
}
