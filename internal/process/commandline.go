package process

import (
	"errors"
	"strings"
)

var ErrUnclosedQuote = errors.New("unclosed quote in command")

// ParseCommandLine splits a command line into argv. Single and double quotes
// group words, and a backslash escapes the next rune outside single quotes.
// No shell expansion happens.
func ParseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	inWord := false
	quote := rune(0)

	runes := []rune(strings.TrimSpace(line))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == '\'':
			current.WriteRune(r)
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inWord = true
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			inWord = true
		case quote == 0 && (r == ' ' || r == '\t' || r == '\n'):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, ErrUnclosedQuote
	}
	if inWord {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
