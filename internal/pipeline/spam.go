package pipeline

import "strings"

// maxContentLen is the length above which inbound content is treated as
// spam outright.
const maxContentLen = 2000

// maxRepeatRun is the longest run of identical consecutive characters
// tolerated before content is treated as spam.
const maxRepeatRun = 10

// spamPhrases are matched case-insensitively as substrings. The list is
// a heuristic for the usual low-effort crypto spam, not an attempt at
// adversarially robust filtering.
var spamPhrases = []string{
	"airdrop",
	"giveaway",
	"free btc",
	"free bitcoin",
	"claim now",
	"limited time",
	"act fast",
	"100% profit",
	"guaranteed return",
}

// IsSpam classifies inbound content. Checks run in order and
// short-circuit on the first match: empty, oversized, known phrase,
// character run.
func IsSpam(content string) bool {
	if strings.TrimSpace(content) == "" {
		return true
	}

	if len(content) > maxContentLen {
		return true
	}

	lower := strings.ToLower(content)
	for _, phrase := range spamPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	run := 0
	var prev rune
	for i, r := range content {
		if i > 0 && r == prev {
			run++
			if run > maxRepeatRun {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}

	return false
}
