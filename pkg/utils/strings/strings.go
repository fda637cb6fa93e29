package strings

import "strings"

// like strings.Split(s, sep), but return empty slice when s == "".
func SplitIfNotEmpty(s string, sep string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, sep)
}

// supply suffix if text does not have it.
func SupplySuffix(text, suffix string) string {
	if strings.HasSuffix(text, suffix) {
		return text
	}
	return text + suffix
}

// remove prefix repeatedly, until text does not have it.
func TrimPrefixAll(text, prefix string) string {
	if prefix == "" {
		return text
	}
	for strings.HasPrefix(text, prefix) {
		text = strings.TrimPrefix(text, prefix)
	}
	return text
}
