package synthesis

import "strings"

// UnwrapContent returns the body of the first fenced code block in text,
// preferring a block tagged with lang. Text without a fence is returned
// trimmed.
func UnwrapContent(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
		"```\n",
		"```\r\n",
	}
	for _, pattern := range patterns {
		idx := strings.Index(text, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
		return strings.TrimSpace(text[start:])
	}

	// A fence with some other tag, e.g. ```golang.
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
			if end := strings.Index(rest, "```"); end != -1 {
				return strings.TrimSpace(rest[:end])
			}
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(text)
}
