package search

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Key is one IMAP search key. OR and NOT carry sub-keys, the rest carry
// string arguments.
type Key struct {
	Name string
	Args []string
	Sub  []*Key
}

// Or builds OR(a, b).
func Or(a, b *Key) *Key { return &Key{Name: "OR", Sub: []*Key{a, b}} }

// OrAll folds keys left to right: OrAll(a,b,c) is OR(OR(a,b),c).
func OrAll(keys ...*Key) *Key {
	k := keys[0]
	for _, next := range keys[1:] {
		k = Or(k, next)
	}
	return k
}

// Field builds a key with string arguments.
func Field(name string, args ...string) *Key {
	return &Key{Name: name, Args: args}
}

// keyArity lists the number of string arguments for known keys. OR and NOT
// take sub-keys and are handled separately.
var keyArity = map[string]int{
	"ALL": 0, "ANSWERED": 0, "DELETED": 0, "DRAFT": 0, "FLAGGED": 0,
	"NEW": 0, "OLD": 0, "RECENT": 0, "SEEN": 0, "UNANSWERED": 0,
	"UNDELETED": 0, "UNDRAFT": 0, "UNFLAGGED": 0, "UNSEEN": 0,
	"BCC": 1, "BEFORE": 1, "BODY": 1, "CC": 1, "FROM": 1, "KEYWORD": 1,
	"LARGER": 1, "ON": 1, "SENTBEFORE": 1, "SENTON": 1, "SENTSINCE": 1,
	"SINCE": 1, "SMALLER": 1, "SUBJECT": 1, "TEXT": 1, "TO": 1, "UID": 1,
	"UNKEYWORD": 1, "X-GM-RAW": 1,
	"HEADER": 2,
}

// atomArgs are rendered bare rather than quoted.
var atomArgs = map[string]bool{
	"BEFORE": true, "ON": true, "SINCE": true, "SENTBEFORE": true,
	"SENTON": true, "SENTSINCE": true, "LARGER": true, "SMALLER": true,
	"UID": true, "KEYWORD": true, "UNKEYWORD": true,
}

// Escaper renders one string argument.
type Escaper func(string) string

// Quote is the standard IMAP quoted-string form.
func Quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// GmailEscape sends non-ASCII values as non-synchronizing literals.
func GmailEscape(s string) string {
	if isASCII(s) {
		return Quote(s)
	}
	return fmt.Sprintf("{%d+}\r\n%s", len(s), s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// String renders the key with standard quoting.
func (k *Key) String() string {
	return k.Render(Quote)
}

// Render renders the key in IMAP prefix notation.
func (k *Key) Render(esc Escaper) string {
	var b strings.Builder
	k.render(&b, esc)
	return b.String()
}

func (k *Key) render(b *strings.Builder, esc Escaper) {
	if k.Name == "()" {
		b.WriteByte('(')
		for i, sub := range k.Sub {
			if i > 0 {
				b.WriteByte(' ')
			}
			sub.render(b, esc)
		}
		b.WriteByte(')')
		return
	}
	b.WriteString(k.Name)
	for i, arg := range k.Args {
		b.WriteByte(' ')
		if atomArgs[k.Name] || (k.Name == "HEADER" && i == 0 && isAtom(arg)) {
			b.WriteString(arg)
		} else {
			b.WriteString(esc(arg))
		}
	}
	for _, sub := range k.Sub {
		b.WriteByte(' ')
		sub.render(b, esc)
	}
}

func isAtom(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`(){%*"\]`, c) >= 0 {
			return false
		}
	}
	return true
}

// RenderAll joins top-level keys. An empty list renders as ALL.
func RenderAll(keys []*Key, esc Escaper) string {
	if len(keys) == 0 {
		return "ALL"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Render(esc)
	}
	return strings.Join(parts, " ")
}

// ParseKeys parses rendered IMAP search criteria back into keys.
func ParseKeys(s string) ([]*Key, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &keyParser{toks: toks}
	var keys []*Key
	for !p.done() {
		k, err := p.key()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

type token struct {
	text   string
	quoted bool
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '(' || c == ')':
			toks = append(toks, token{text: string(c)})
			i++
		case c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(s) && s[j] != '"'; j++ {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				b.WriteByte(s[j])
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated quoted string at %d", i)
			}
			toks = append(toks, token{text: b.String(), quoted: true})
			i = j + 1
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated literal at %d", i)
			}
			n, err := strconv.Atoi(strings.TrimSuffix(s[i+1:i+end], "+"))
			if err != nil {
				return nil, fmt.Errorf("bad literal length at %d: %w", i, err)
			}
			start := i + end + 1
			if !strings.HasPrefix(s[start:], "\r\n") || start+2+n > len(s) {
				return nil, fmt.Errorf("truncated literal at %d", i)
			}
			start += 2
			toks = append(toks, token{text: s[start : start+n], quoted: true})
			i = start + n
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '(' && s[j] != ')' && s[j] != '\r' && s[j] != '\n' {
				j++
			}
			toks = append(toks, token{text: s[i:j]})
			i = j
		}
	}
	return toks, nil
}

type keyParser struct {
	toks []token
	pos  int
}

func (p *keyParser) done() bool { return p.pos >= len(p.toks) }

func (p *keyParser) next() (token, error) {
	if p.done() {
		return token{}, fmt.Errorf("unexpected end of criteria")
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *keyParser) key() (*Key, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	if t.quoted {
		return nil, fmt.Errorf("expected search key, got string %q", t.text)
	}
	if t.text == "(" {
		group := &Key{Name: "()"}
		for {
			if p.done() {
				return nil, fmt.Errorf("unterminated group")
			}
			if p.toks[p.pos].text == ")" && !p.toks[p.pos].quoted {
				p.pos++
				return group, nil
			}
			sub, err := p.key()
			if err != nil {
				return nil, err
			}
			group.Sub = append(group.Sub, sub)
		}
	}

	name := strings.ToUpper(t.text)
	switch name {
	case "OR", "NOT":
		k := &Key{Name: name}
		n := 2
		if name == "NOT" {
			n = 1
		}
		for i := 0; i < n; i++ {
			sub, err := p.key()
			if err != nil {
				return nil, err
			}
			k.Sub = append(k.Sub, sub)
		}
		return k, nil
	}

	arity, ok := keyArity[name]
	if !ok {
		return nil, fmt.Errorf("unknown search key %q", t.text)
	}
	k := &Key{Name: name}
	for i := 0; i < arity; i++ {
		arg, err := p.next()
		if err != nil {
			return nil, err
		}
		k.Args = append(k.Args, arg.text)
	}
	return k, nil
}
