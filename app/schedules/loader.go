package schedules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads administrator schedule overrides from a YAML file. A missing
// file is not an error: it means no overrides are configured. File order is
// preserved; when several schedules match a feed, the first one wins.
func Load(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var doc struct {
		Schedules []Schedule `yaml:"schedules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	for i, s := range doc.Schedules {
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("invalid schedule %d (%s): %w", i, s.Name, err)
		}
	}

	return doc.Schedules, nil
}

func validate(s Schedule) error {
	if s.RefreshRateMinutes <= 0 {
		return fmt.Errorf("refresh_rate_minutes must be positive, got %d", s.RefreshRateMinutes)
	}
	if len(s.Keywords) == 0 && len(s.FeedIDs) == 0 {
		return fmt.Errorf("schedule must declare keywords or feed_ids")
	}
	return nil
}

// Matches reports whether the schedule applies to the given feed.
// Keyword matching is a case-sensitive substring check against the URL.
func (s Schedule) Matches(feedID, feedURL string) bool {
	for _, id := range s.FeedIDs {
		if id == feedID {
			return true
		}
	}
	for _, kw := range s.Keywords {
		if kw != "" && strings.Contains(feedURL, kw) {
			return true
		}
	}
	return false
}
