package feedcontent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/inspoflow/model"
)

// QueryOptions specifies how to list feed items.
type QueryOptions struct {
	Limit     int
	Offset    int
	SavedOnly bool
	LikedOnly bool
	Since     *time.Time
	Query     string
}

// durationPattern matches duration strings like "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([hdwmy])$`)

// ParseDuration parses a duration string like "12h", "7d", "2w", "3m", "1y".
//
// Supported units:
//   - h: hours
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 12h, 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	var duration time.Duration
	switch matches[2] {
	case "h":
		duration = time.Duration(num) * time.Hour
	case "d":
		duration = time.Duration(num) * 24 * time.Hour
	case "w":
		duration = time.Duration(num) * 7 * 24 * time.Hour
	case "m":
		duration = time.Duration(num) * 30 * 24 * time.Hour
	case "y":
		duration = time.Duration(num) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit: %s (expected h, d, w, m, or y)", matches[2])
	}

	return duration, nil
}

// SinceToTime converts a "since" duration string (e.g., "7d") to the point
// in time that long before now.
func SinceToTime(since string, now time.Time) (time.Time, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-duration), nil
}

// BuildQueryOptions constructs QueryOptions from CLI flags.
func BuildQueryOptions(limit, offset int, saved, liked bool, since, query string) (QueryOptions, error) {
	opts := QueryOptions{
		Limit:     limit,
		Offset:    offset,
		SavedOnly: saved,
		LikedOnly: liked,
		Query:     query,
	}

	if since != "" {
		t, err := SinceToTime(since, time.Now())
		if err != nil {
			return opts, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		opts.Since = &t
	}

	return opts, nil
}

// Query lists items matching opts in feed order, then applies paging.
func (s *Store) Query(opts QueryOptions) []model.FeedItem {
	q := strings.ToLower(opts.Query)
	blank := strings.TrimSpace(opts.Query) == ""

	items := s.filter(func(item *model.FeedItem) bool {
		if opts.SavedOnly && !item.IsSaved {
			return false
		}
		if opts.LikedOnly && !item.IsLiked {
			return false
		}
		if opts.Since != nil && item.CreatedAt.Before(*opts.Since) {
			return false
		}
		return blank || item.Matches(q)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []model.FeedItem{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
