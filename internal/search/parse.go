// Package search compiles the webmail query language into IMAP SEARCH
// criteria.
//
// A query is free text mixed with field:value pairs:
//
//	from:alice subject:"quarterly report" has:attachment date:2024.01.01/2024.02.01
//
// Recognised fields are email (alias mail), from, to, subject, has, date,
// body (alias text) and attach. Everything else is OTHER text.
package search

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Field names of a parsed query.
const (
	FieldEmail   = "EMAIL"
	FieldFrom    = "FROM"
	FieldTo      = "TO"
	FieldSubject = "SUBJECT"
	FieldHas     = "HAS"
	FieldDate    = "DATE"
	FieldBody    = "BODY"
	FieldAttach  = "ATTACH"
	FieldOther   = "OTHER"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	fieldSpaceRe = regexp.MustCompile(`(?i)(e?mail|from|to|subject|has|date|text|body|attach): `)
	fieldRe      = regexp.MustCompile(`(?i)(e?mail|from|to|subject|has|date|text|body|attach):(\S*)`)
)

// Criteria holds the named fields extracted from one query string.
type Criteria map[string]string

// Only reports whether name is the single field present.
func (c Criteria) Only(name string) bool {
	_, ok := c[name]
	return ok && len(c) == 1
}

// Parse splits a free-text query into fields. Quoted runs (single or
// double quotes, backslash escapes honoured) are kept whole and lose their
// quotes.
func Parse(text string) Criteria {
	text = collapse(text)
	text = strings.TrimSpace(fieldSpaceRe.ReplaceAllString(text, "$1:"))

	text, quoted := protectQuoted(text)

	result := Criteria{}
	for _, m := range fieldRe.FindAllStringSubmatch(text, -1) {
		if m[2] == "" {
			continue
		}
		name := strings.ToUpper(m[1])
		switch name {
		case "MAIL":
			name = FieldEmail
		case "TEXT":
			name = FieldBody
		}
		if prev, ok := result[name]; ok {
			sep := " "
			if name == FieldEmail {
				sep = ","
			}
			result[name] = prev + sep + m[2]
		} else {
			result[name] = m[2]
		}
		text = strings.Replace(text, m[0], "", 1)
	}

	if other := collapse(text); other != "" {
		result[FieldOther] = other
	}

	for name, value := range result {
		result[name] = restoreQuoted(value, quoted)
	}
	for name, value := range result {
		if value == "" {
			delete(result, name)
		}
	}
	return result
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// protectQuoted replaces every quoted run with a random placeholder key.
func protectQuoted(text string) (string, map[string]string) {
	quoted := make(map[string]string)
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '"' && c != '\'' {
			b.WriteByte(c)
			continue
		}
		end := closingQuote(text, i+1, c)
		if end < 0 {
			b.WriteByte(c)
			continue
		}
		key := "q" + strings.ReplaceAll(uuid.NewString(), "-", "")
		quoted[key] = unescape(text[i+1 : end])
		b.WriteString(key)
		i = end
	}
	return b.String(), quoted
}

func closingQuote(text string, from int, quote byte) int {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case quote:
			return j
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func restoreQuoted(value string, quoted map[string]string) string {
	restored := false
	for key, original := range quoted {
		if strings.Contains(value, key) {
			value = strings.ReplaceAll(value, key, original)
			restored = true
		}
	}
	if restored {
		return strings.TrimSpace(value)
	}
	return strings.Trim(value, `"' `)
}
