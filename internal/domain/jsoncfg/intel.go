package jsoncfg

import (
	"strings"

	"github.com/spf13/cast"
)

// BusinessIntelligence is the free-form bag of facts a customer supplies about
// their business. Keys recognised by consumers evolve independently, so values
// are kept untyped and read through lenient accessors.
type BusinessIntelligence map[string]any

// Normalize lower-cases and trims keys and drops nil values. A nil receiver
// stays nil.
func (bi BusinessIntelligence) Normalize() BusinessIntelligence {
	if bi == nil {
		return nil
	}
	out := make(BusinessIntelligence, len(bi))
	for k, v := range bi {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			continue
		}
		out[key] = v
	}
	return out
}

// Clone returns a shallow copy of the top-level map. Nested values are
// treated as immutable by every consumer.
func (bi BusinessIntelligence) Clone() BusinessIntelligence {
	if bi == nil {
		return nil
	}
	out := make(BusinessIntelligence, len(bi))
	for k, v := range bi {
		out[k] = v
	}
	return out
}

// String returns the trimmed string form of key.
func (bi BusinessIntelligence) String(key string) (string, bool) {
	v, ok := bi[key]
	if !ok {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Bool accepts JSON booleans, numbers and the usual textual spellings.
func (bi BusinessIntelligence) Bool(key string) (bool, bool) {
	v, ok := bi[key]
	if !ok {
		return false, false
	}
	if s, isString := v.(string); isString {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true, true
		case "no", "n", "off":
			return false, true
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Int accepts JSON numbers and numeric strings.
func (bi BusinessIntelligence) Int(key string) (int, bool) {
	v, ok := bi[key]
	if !ok {
		return 0, false
	}
	if s, isString := v.(string); isString {
		v = strings.TrimSpace(s)
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Strings accepts arrays or a comma separated string.
func (bi BusinessIntelligence) Strings(key string) []string {
	v, ok := bi[key]
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString {
		v = strings.Split(s, ",")
	}
	items, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
