package llm

import "strings"

// firstJSONObject returns the outermost {...} span in a model response,
// or "" if none is present. Responses often wrap JSON in prose or
// markdown fences, so indexes are used rather than a full parse.
func firstJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// firstJSONArray returns the outermost [...] span in a model response,
// or "" if none is present.
func firstJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
