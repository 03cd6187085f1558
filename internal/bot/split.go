package bot

import "strings"

// discordMessageLimit is the maximum length of one Discord message.
const discordMessageLimit = 2000

// SplitMessage breaks content into pieces that fit within limit runes,
// preferring to break at paragraph and line boundaries, then at spaces, and
// only cutting mid-word when a single word exceeds the limit.
func SplitMessage(content string, limit int) []string {
	if limit <= 0 {
		limit = discordMessageLimit
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= limit {
		return []string{content}
	}

	var parts []string
	for len(runes) > limit {
		cut := findSplitPoint(runes, limit)
		part := strings.TrimSpace(string(runes[:cut]))
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n') {
			runes = runes[1:]
		}
	}

	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// findSplitPoint returns where to cut a slice longer than limit: the last
// paragraph break, line break, or space within the window, or limit itself
// when the window is one unbroken run. Indexes are rune positions.
func findSplitPoint(runes []rune, limit int) int {
	lastPara, lastNewline, lastSpace := -1, -1, -1
	for i := 0; i < limit; i++ {
		switch runes[i] {
		case '\n':
			if i > 0 && runes[i-1] == '\n' {
				lastPara = i - 1
			}
			lastNewline = i
		case ' ':
			lastSpace = i
		}
	}

	if lastPara > 0 {
		return lastPara
	}
	if lastNewline > 0 {
		return lastNewline
	}
	if lastSpace > 0 {
		return lastSpace
	}
	return limit
}
