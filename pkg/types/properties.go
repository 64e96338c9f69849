package types

import (
	"encoding/json"
	"fmt"
)

// Known extension property keys.
const (
	PropCustomMailTags       = "Mail::CustomMailTags"
	PropAutoresponderEnable  = "Mail::AutoresponderEnable"
	PropAutoresponderSubject = "Mail::AutoresponderSubject"
	PropAutoresponderMessage = "Mail::AutoresponderMessage"
)

type propKind int

const (
	propString propKind = iota
	propBool
	propStringList
)

var knownProps = map[string]propKind{
	PropCustomMailTags:       propStringList,
	PropAutoresponderEnable:  propBool,
	PropAutoresponderSubject: propString,
	PropAutoresponderMessage: propString,
}

// Properties is the typed extension map stored with an account.
// Absent keys read as the zero value.
type Properties map[string]any

// String returns a string property.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns a boolean property.
func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// StringList returns a list property.
func (p Properties) StringList(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Set validates value against the key's declared kind and stores it.
func (p Properties) Set(key string, value any) error {
	kind, ok := knownProps[key]
	if !ok {
		return fmt.Errorf("unknown property %q", key)
	}
	switch kind {
	case propString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("property %q must be a string", key)
		}
	case propBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("property %q must be a bool", key)
		}
	case propStringList:
		if _, ok := value.([]string); !ok {
			return fmt.Errorf("property %q must be a string list", key)
		}
	}
	p[key] = value
	return nil
}

// Delete removes key.
func (p Properties) Delete(key string) {
	delete(p, key)
}

// UnmarshalProperties decodes a stored JSON blob, dropping unknown keys and
// values of the wrong kind.
func UnmarshalProperties(data []byte) (Properties, error) {
	props := Properties{}
	if len(data) == 0 {
		return props, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	for k, v := range raw {
		if list, ok := v.([]any); ok && knownProps[k] == propStringList {
			v = Properties{k: list}.StringList(k)
		}
		if err := props.Set(k, v); err != nil {
			continue
		}
	}
	return props, nil
}
