package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Room-count patterns in priority order: full adjective, abbreviation,
// bare noun. The first match with a value in [1,10] wins.
var roomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)[-\s]?комнатн`),
	regexp.MustCompile(`(\d+)[-\s]?комн`),
	regexp.MustCompile(`(\d+)\s*комнат`),
	regexp.MustCompile(`(\d+)[-\s]?room`),
}

const (
	minRooms = 1
	maxRooms = 10
)

// ExtractRooms scans text for a room count. Returns nil when no pattern
// yields a value in range; ambiguity is an explicit absence, never a
// guessed default.
func ExtractRooms(text string) *int {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for _, re := range roomPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil || v < minRooms || v > maxRooms {
			continue
		}
		return &v
	}
	return nil
}
