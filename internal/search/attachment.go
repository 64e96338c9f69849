package search

import (
	"regexp"
	"strings"

	"github.com/brandon/mailcore/pkg/types"
)

// StructureFilter decides from a message's MIME structure whether it stays
// in the result set.
type StructureFilter func(*types.BodyPart) bool

// Filter returns the structure predicate of q, or nil when q needs none.
// attach:<glob> and has:attachment are independent: when both are given a
// message must satisfy both.
func (q *Query) Filter() StructureFilter {
	var preds []StructureFilter
	if q.HasAttachment {
		preds = append(preds, HasAttachment)
	}
	if q.AttachmentName != "" {
		preds = append(preds, AttachmentNamed(q.AttachmentName))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return func(p *types.BodyPart) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

// HasAttachment keeps messages with at least one attachment part.
func HasAttachment(p *types.BodyPart) bool {
	for range p.Attachments() {
		return true
	}
	return false
}

// AttachmentNamed keeps messages with an attachment whose filename matches
// glob, case-insensitively. '*' matches any run of characters.
func AttachmentNamed(glob string) StructureFilter {
	re := globRegexp(glob)
	return func(p *types.BodyPart) bool {
		for part := range p.Attachments() {
			if re.MatchString(part.Filename) {
				return true
			}
		}
		return false
	}
}

func globRegexp(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile(`(?is)^` + strings.Join(parts, ".*") + `$`)
}
