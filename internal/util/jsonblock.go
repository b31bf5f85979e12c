package util

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// DecodeJSONBlock locates the first '{' and the last '}' in raw model output
// and unmarshals that substring into v. Model completions routinely wrap the
// requested JSON object in prose or markdown fences, so the surrounding text
// is ignored rather than rejected.
//
// The boolean result is false when no brace-delimited block exists or the
// block does not parse; callers supply their own fixed fallback in that case
// and never propagate the failure.
func DecodeJSONBlock(raw string, v any) bool {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v) == nil
}

// Truncate bounds s to at most n bytes, appending an ellipsis marker when
// content was dropped. The cut backs up to a rune boundary so a multi-byte
// character is never split. Used to cap source content in validation prompts.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
