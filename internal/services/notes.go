package services

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// "minutes limit 18", "minute restriction of 24", "limited to 20 minutes"
	minutesLimitRe = regexp.MustCompile(`(?i)(?:minutes?\s+(?:limit|restriction|cap)(?:\s+of)?|limit(?:ed)?\s+to)\s+(\d{1,2})`)

	// Note segments split on sentence-ish boundaries so one player's status
	// line does not bleed into another's.
	segmentRe = regexp.MustCompile(`[.;\n]+`)
)

// Keywords indicating a player is not playing. Matched case-insensitively
// inside a name-matched note segment.
var outKeywords = []string{
	"is out",
	"ruled out",
	"out tonight",
	"out for",
	"inactive",
	"dnp",
	"will not play",
	"not playing",
	"scratched",
	"sidelined",
}

// Keywords that indicate some playing-time restriction and penalize baseline
// confidence even before interpretation.
var restrictionKeywords = []string{
	"minutes limit",
	"minute limit",
	"minutes restriction",
	"restriction",
	"limited",
	"questionable",
	"doubtful",
	"game-time",
	"ruled out",
	"is out",
	"inactive",
	"dnp",
}

// NormalizeNotes trims, collapses whitespace and lower-cases free-text user
// notes. The normalized form is only used internally for hashing and keyword
// matching, never shown back to the caller.
func NormalizeNotes(notes string) string {
	return strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(notes), " "))
}

// NotesHash returns the sha256 hex digest of the normalized notes, the
// free-text component of the result cache key.
func NotesHash(notes string) string {
	sum := sha256.Sum256([]byte(NormalizeNotes(notes)))
	return hex.EncodeToString(sum[:])
}

// HasRestrictionKeyword reports whether the notes mention any playing-time
// restriction indicator.
func HasRestrictionKeyword(notes string) bool {
	normalized := NormalizeNotes(notes)
	for _, kw := range restrictionKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// nameMatches reports whether a note segment refers to the given player.
// Full-name substring match, or any name-part token longer than 2 characters
// present as a whole word. This is a heuristic classifier: common name tokens
// can mismatch, which is why matching is segment-scoped.
func nameMatches(segment, playerName string) bool {
	segment = NormalizeNotes(segment)
	name := NormalizeNotes(playerName)
	if name == "" {
		return false
	}
	if strings.Contains(segment, name) {
		return true
	}

	words := tokenize(segment)
	for _, part := range strings.Fields(name) {
		if len(part) <= 2 {
			continue
		}
		if _, ok := words[part]; ok {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\'')
	}) {
		words[w] = struct{}{}
	}
	return words
}

// DetectOut reports whether the notes explicitly rule the named player out.
// An out keyword only counts when the same segment name-matches the player;
// a nameless "he's out" never zeroes anybody.
func DetectOut(notes, playerName string) bool {
	for _, segment := range segmentRe.Split(notes, -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		if !nameMatches(segment, playerName) {
			continue
		}
		normalized := NormalizeNotes(segment)
		for _, kw := range outKeywords {
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}

// DetectMinutesLimit extracts an explicit numeric minutes limit for the named
// player from the notes, if one exists in a segment that name-matches them.
func DetectMinutesLimit(notes, playerName string) (int, bool) {
	for _, segment := range segmentRe.Split(notes, -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		if !nameMatches(segment, playerName) {
			continue
		}
		match := minutesLimitRe.FindStringSubmatch(segment)
		if match == nil {
			continue
		}
		limit, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return limit, true
	}
	return 0, false
}
