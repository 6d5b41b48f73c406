package schedules

// Schedule is an administrator-defined refresh rate override. A schedule
// matches a feed either by explicit feed ID or by a case-sensitive substring
// match of any keyword against the feed URL.
type Schedule struct {
	Name               string   `yaml:"name"`
	Keywords           []string `yaml:"keywords"`
	FeedIDs            []string `yaml:"feed_ids"`
	RefreshRateMinutes int      `yaml:"refresh_rate_minutes"`
}
