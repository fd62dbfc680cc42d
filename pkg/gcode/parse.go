// G-code line parser
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"regexp"
	"strconv"
	"strings"

	"arcwelder-go/pkg/errors"
	"arcwelder-go/pkg/pool"
)

var reParenComment = regexp.MustCompile(`\([^)]*\)`)

// freeText lists codes whose arguments are messages or file names rather
// than numeric words.
var freeText = map[string]bool{
	"M23":    true,
	"M28":    true,
	"M29":    true,
	"M30":    true,
	"M32":    true,
	"M33":    true,
	"M117":   true,
	"M115":   true,
	"M118":   true,
	"M486":   true,
	"M531":   true,
	"M862.3": true,
	"M862.6": true,
	"M928":   true,
}

// Parse parses one line (without its line ending).
//
// Parenthesised comments, a leading N line number and a trailing *checksum
// are stripped before the words are read; such lines are marked Annotated.
// Compact words ("G1X10Y20") are split. Blank lines, comments and
// extended commands (`SET_FAN_SPEED FAN=part SPEED=0.5`) are returned as
// passthrough commands with a nil error.
//
// A line with a numeric word that does not parse is returned marked
// Malformed together with a G-code error; it is still usable as a
// passthrough. A line that starts with a code but cannot be split into
// words is Malformed with no named letters.
func Parse(line string) (*Command, error) {
	cmd := &Command{kind: KindPassthrough, raw: line}
	body := line
	if idx := commentIndex(line); idx >= 0 {
		cmd.comment = line[idx+1:]
		cmd.hasComment = true
		body = line[:idx]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return cmd, nil
	}
	if strings.IndexByte(body, '(') >= 0 {
		body = strings.TrimSpace(reParenComment.ReplaceAllString(body, " "))
		cmd.annotated = true
		if body == "" {
			return cmd, nil
		}
	}
	if i := strings.LastIndexByte(body, '*'); i >= 0 {
		if sum := strings.TrimSpace(body[i+1:]); sum != "" && allDigits(sum) {
			body = strings.TrimSpace(body[:i])
			cmd.annotated = true
		}
	}

	fields := pool.GetStringSlice()
	defer pool.PutStringSlice(fields)
	*fields = appendFields(*fields, body)
	words, numbered := leadingWords(*fields)
	if numbered {
		cmd.annotated = true
	}
	if len(words) == 0 {
		return cmd, nil
	}

	code, ok := normalizeCode(words[0])
	if !ok {
		return unreadable(cmd, body)
	}
	cmd.code = code
	cmd.kind = classify(code)

	if freeText[code] {
		for _, tok := range words[1:] {
			letter := upper(tok[0])
			if letter < 'A' || letter > 'Z' || strings.IndexByte(cmd.named, letter) >= 0 {
				continue
			}
			cmd.named += string(letter)
			if p, ok := parseParam(letter, tok[1:]); ok {
				cmd.params = append(cmd.params, p)
			}
		}
		return cmd, nil
	}
	if strings.ContainsAny(body, "()*") {
		cmd.malformed = true
		return cmd, errors.GCodeParseError(line, "unbalanced comment or stray checksum")
	}

	// Bare letters are flags everywhere except on moves and G92.
	needValue := cmd.kind == KindLinearMove || cmd.kind == KindArcMove || cmd.kind == KindOffset

	var firstErr error
	fail := func(tok, reason string) {
		cmd.malformed = true
		if firstErr == nil {
			firstErr = errors.GCodeInvalidParameterError(code, tok[:1], tok[1:], reason)
		}
	}

	params := make([]Param, 0, len(words)-1)
	for _, tok := range words[1:] {
		letter := upper(tok[0])
		if letter < 'A' || letter > 'Z' {
			cmd.malformed = true
			if firstErr == nil {
				firstErr = errors.GCodeParseError(line, "expected parameter letter in "+strconv.Quote(tok))
			}
			continue
		}
		if strings.IndexByte(cmd.named, letter) >= 0 {
			fail(tok, "duplicate parameter")
			continue
		}
		cmd.named += string(letter)
		if len(tok) == 1 {
			if needValue {
				fail(tok, "missing value")
				continue
			}
			params = append(params, Param{Letter: letter})
			continue
		}
		p, ok := parseParam(letter, tok[1:])
		if !ok {
			fail(tok, "invalid number")
			continue
		}
		params = append(params, p)
	}

	if cmd.malformed {
		return cmd, firstErr
	}
	cmd.params = params
	return cmd, nil
}

// leadingWords drops an N line number and splits a compact first word
// ("G1X10Y20", "N7G1X1") into separate words. numbered reports whether a
// line number was dropped.
func leadingWords(fields []string) (words []string, numbered bool) {
	words = fields
	for len(words) > 0 {
		if _, ok := normalizeCode(words[0]); !ok {
			split, ok := splitCompact(words[0])
			if !ok {
				return words, numbered
			}
			words = append(split, words[1:]...)
		}
		if len(words) > 1 && isLineNumber(words[0]) {
			words = words[1:]
			numbered = true
			continue
		}
		return words, numbered
	}
	return words, numbered
}

// splitCompact splits a token at every letter. The first piece must be a
// valid code.
func splitCompact(tok string) ([]string, bool) {
	var pieces []string
	start := 0
	for i := 1; i < len(tok); i++ {
		if c := upper(tok[i]); c >= 'A' && c <= 'Z' {
			pieces = append(pieces, tok[start:i])
			start = i
		}
	}
	pieces = append(pieces, tok[start:])
	if len(pieces) < 2 {
		return nil, false
	}
	if _, ok := normalizeCode(pieces[0]); !ok {
		return nil, false
	}
	return pieces, true
}

func isLineNumber(word string) bool {
	return len(word) > 1 && upper(word[0]) == 'N' && allDigits(word[1:])
}

// unreadable handles a line whose words cannot be separated. If it starts
// with a known code the line is reported Malformed so that a move the
// printer will execute is not silently ignored.
func unreadable(cmd *Command, body string) (*Command, error) {
	code, ok := leadingCode(body)
	if !ok {
		return cmd, nil
	}
	cmd.code = code
	cmd.kind = classify(code)
	if freeText[code] {
		return cmd, nil
	}
	cmd.malformed = true
	return cmd, errors.GCodeParseError(cmd.raw, "cannot split "+code+" into words")
}

// leadingCode reads the `<letter><digits>[.<digits>]` prefix of body after
// an optional N line number.
func leadingCode(body string) (string, bool) {
	for {
		i := 1
		for i < len(body) && (body[i] >= '0' && body[i] <= '9' || body[i] == '.') {
			i++
		}
		code, ok := normalizeCode(body[:i])
		if !ok {
			return "", false
		}
		if code[0] == 'N' && !strings.Contains(code, ".") {
			rest := strings.TrimLeft(body[i:], " \t")
			if rest == "" {
				return "", false
			}
			body = rest
			continue
		}
		return code, true
	}
}

// parseParam parses a signed decimal number with optional exponent.
func parseParam(letter byte, text string) (Param, bool) {
	if text == "" {
		return Param{Letter: letter, Text: text}, true
	}
	digits := false
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return Param{}, false
		}
	}
	if !digits {
		return Param{}, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Param{}, false
	}
	return Param{
		Letter:   letter,
		Value:    v,
		HasValue: true,
		Decimals: countDecimals(text),
		Text:     text,
	}, true
}

func countDecimals(text string) int {
	dot := strings.IndexByte(text, '.')
	if dot < 0 {
		return 0
	}
	n := 0
	for i := dot + 1; i < len(text) && text[i] >= '0' && text[i] <= '9'; i++ {
		n++
	}
	return n
}

// normalizeCode accepts `<letter><digits>[.<digits>]`, upper-cases the
// letter and strips leading zeros ("g01" -> "G1").
func normalizeCode(tok string) (string, bool) {
	letter := upper(tok[0])
	if letter < 'A' || letter > 'Z' || len(tok) < 2 {
		return "", false
	}
	num := tok[1:]
	intPart, frac, hasFrac := strings.Cut(num, ".")
	if intPart == "" || !allDigits(intPart) || (hasFrac && (frac == "" || !allDigits(frac))) {
		return "", false
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		return string(letter) + intPart + "." + frac, true
	}
	return string(letter) + intPart, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// appendFields splits s on spaces and tabs
func appendFields(dst []string, s string) []string {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			if start >= 0 {
				dst = append(dst, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		dst = append(dst, s[start:])
	}
	return dst
}

func commentIndex(line string) int {
	return strings.IndexByte(line, ';')
}
