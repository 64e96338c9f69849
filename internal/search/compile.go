package search

import (
	"strings"
	"time"
)

// Filter names accepted alongside the query text.
const (
	FilterFlagged = "flagged"
	FilterUnseen  = "unseen"
)

const imapDateLayout = "2-Jan-2006"

// Compiler turns query text into IMAP search criteria for one provider.
type Compiler struct {
	// Gmail enables X-GM-RAW search and literal escaping of non-ASCII
	// values. Set it when the server advertises X-GM-EXT-1.
	Gmail bool
	// Location interprets date: values. Nil means UTC.
	Location *time.Location
	// UseBodyStructures answers has:attachment with a structure scan
	// instead of Content-Type header clauses.
	UseBodyStructures bool
}

// Query is a compiled search.
type Query struct {
	Keys []*Key
	// Criteria is Keys rendered with the provider's escaping.
	Criteria string
	// AttachmentName is the attach:<glob> pattern, matched after the
	// server-side search.
	AttachmentName string
	// HasAttachment asks for a structure scan keeping messages with at
	// least one attachment.
	HasAttachment bool
}

// MatchAll reports whether the query selects every message.
func (q *Query) MatchAll() bool {
	return len(q.Keys) == 0 && !q.NeedsStructureScan()
}

// NeedsStructureScan reports whether results must be narrowed by
// BODYSTRUCTURE.
func (q *Query) NeedsStructureScan() bool {
	return q.AttachmentName != "" || q.HasAttachment
}

// Escaper returns the argument escaping for the provider.
func (c *Compiler) Escaper() Escaper {
	if c.Gmail {
		return GmailEscape
	}
	return Quote
}

// Compile builds the criteria for text and filters.
func (c *Compiler) Compile(text string, filters []string) *Query {
	q := &Query{}
	text = strings.TrimSpace(text)
	if text == "" && len(filters) == 0 {
		q.Criteria = "ALL"
		return q
	}

	var keys []*Key
	var raw []string
	implied := make(map[string]bool)

	if text != "" {
		fields := Parse(text)
		if fields.Only(FieldOther) {
			v := fields[FieldOther]
			keys = append(keys, OrAll(
				Field("FROM", v), Field("TO", v), Field("CC", v), Field("SUBJECT", v),
			))
		} else {
			keys, raw = c.fieldKeys(fields, q, implied)
		}
	}

	for _, f := range filters {
		name := strings.ToUpper(strings.TrimSpace(f))
		switch name {
		case "FLAGGED", "UNSEEN":
		default:
			continue
		}
		if !implied[name] {
			implied[name] = true
			keys = append(keys, Field(name))
		}
	}

	if rawText := collapse(strings.Join(raw, " ")); c.Gmail && rawText != "" {
		keys = append(keys, Field("X-GM-RAW", rawText))
	}

	q.Keys = keys
	q.Criteria = RenderAll(keys, c.Escaper())
	return q
}

func (c *Compiler) fieldKeys(fields Criteria, q *Query, implied map[string]bool) ([]*Key, []string) {
	var keys []*Key
	var raw []string

	if v, ok := fields[FieldEmail]; ok {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				keys = append(keys, OrAll(
					Field("FROM", addr), Field("TO", addr), Field("CC", addr), Field("BCC", addr),
				))
			}
		}
	}
	if v, ok := fields[FieldTo]; ok {
		keys = append(keys, Or(Field("TO", v), Field("CC", v)))
	}
	if v, ok := fields[FieldFrom]; ok {
		keys = append(keys, Field("FROM", v))
	}
	if v, ok := fields[FieldSubject]; ok {
		keys = append(keys, Field("SUBJECT", v))
	}

	if v, ok := fields[FieldHas]; ok {
		v = strings.ToLower(v)
		if strings.Contains(v, "attach") {
			switch {
			case c.Gmail:
				raw = append(raw, "has:attachment")
			case c.UseBodyStructures:
				q.HasAttachment = true
			default:
				keys = append(keys, OrAll(
					Field("HEADER", "Content-Type", "application/"),
					Field("HEADER", "Content-Type", "multipart/m"),
					Field("HEADER", "Content-Type", "multipart/signed"),
					Field("HEADER", "Content-Type", "multipart/report"),
				))
			}
		}
		if strings.Contains(v, "flag") && !implied["FLAGGED"] {
			implied["FLAGGED"] = true
			keys = append(keys, Field("FLAGGED"))
		}
		if strings.Contains(v, "unseen") && !implied["UNSEEN"] {
			implied["UNSEEN"] = true
			keys = append(keys, Field("UNSEEN"))
		}
	}

	if v, ok := fields[FieldDate]; ok {
		since, before := c.dateRange(v)
		if !since.IsZero() {
			keys = append(keys, Field("SINCE", since.Format(imapDateLayout)))
		}
		if !before.IsZero() {
			keys = append(keys, Field("BEFORE", before.Format(imapDateLayout)))
		}
	}

	if v, ok := fields[FieldAttach]; ok {
		q.AttachmentName = v
	}

	var body []string
	for _, name := range []string{FieldBody, FieldOther} {
		if v, ok := fields[name]; ok {
			if c.Gmail {
				raw = append(raw, v)
			} else {
				body = append(body, v)
			}
		}
	}
	if text := strings.Trim(collapse(strings.Join(body, " ")), `"'`); text != "" {
		keys = append(keys, Field("BODY", text))
	}

	return keys, raw
}

// dateRange parses "Y.m.d" or "from/to". The upper bound is exclusive: the
// start of the day after the last day asked for. Zero times mean unbounded.
func (c *Compiler) dateRange(v string) (since, before time.Time) {
	from, to, isRange := strings.Cut(v, "/")
	if !isRange {
		since = c.parseDay(from)
		if !since.IsZero() {
			before = since.AddDate(0, 0, 1)
		}
		return since.UTC(), before.UTC()
	}
	since = c.parseDay(from)
	if end := c.parseDay(to); !end.IsZero() {
		before = end.AddDate(0, 0, 1)
	}
	return since.UTC(), before.UTC()
}

func (c *Compiler) parseDay(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006.1.2", s, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
