package pipeline

import "strings"

// stripFences removes a surrounding markdown code fence, which models add
// around JSON despite instructions not to.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// salvageArray returns the substring spanning the first '[' through the last
// ']', the widest slice that could still be a JSON array.
func salvageArray(raw string) (string, bool) {
	return salvageBetween(raw, '[', ']')
}

// salvageObject returns the substring spanning the first '{' through the last
// '}'.
func salvageObject(raw string) (string, bool) {
	return salvageBetween(raw, '{', '}')
}

func salvageBetween(raw string, open, closing byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closing)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
