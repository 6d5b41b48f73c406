package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/delivery"
	"github.com/feedrelay/feedrelay/app/filter"
	"github.com/feedrelay/feedrelay/app/identity"
	"github.com/feedrelay/feedrelay/app/lock"
)

// ProcessFeedTask fetches one feed, works out which articles are new, and
// delivers them to the feed's enabled destinations. The processing lock keeps
// concurrent runs for the same feed from double-delivering; losing the lock
// race is a silent skip, not an error.
type ProcessFeedTask struct {
	Task
	Feed             *database.Feed
	feedRepo         database.FeedRepository
	articleRepo      database.ArticleRepository
	processingLock   lock.ProcessingLock
	dispatcher       delivery.Dispatcher
	parser           *gofeed.Parser
	httpClient       *http.Client
	userAgent        string
	maxFetchFailures int
}

func NewProcessFeedTask(feed *database.Feed, feedRepo database.FeedRepository,
	articleRepo database.ArticleRepository, processingLock lock.ProcessingLock,
	dispatcher delivery.Dispatcher, parser *gofeed.Parser, httpClient *http.Client,
	userAgent string, maxFetchFailures int) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:             NewTask(TaskTypeProcessFeed, feed.ID),
		Feed:             feed,
		feedRepo:         feedRepo,
		articleRepo:      articleRepo,
		processingLock:   processingLock,
		dispatcher:       dispatcher,
		parser:           parser,
		httpClient:       httpClient,
		userAgent:        userAgent,
		maxFetchFailures: maxFetchFailures,
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.processingLock.Acquire(ctx, t.Feed.ID) {
		slog.Debug("Feed already being processed, skipping", "feed_id", t.Feed.ID)
		return nil
	}
	defer t.processingLock.Release(ctx, t.Feed.ID)

	parsed, err := t.fetchFeed(ctx, t.Feed.URL)
	if err != nil {
		if updateErr := t.feedRepo.UpdateFetchFailure(ctx, t.Feed.ID, t.maxFetchFailures); updateErr != nil {
			slog.Warn("Failed to record fetch failure", "feed_id", t.Feed.ID, "error", updateErr)
		}
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	if err := t.feedRepo.UpdateFetchSuccess(ctx, t.Feed.ID); err != nil {
		return fmt.Errorf("failed to record fetch success: %w", err)
	}

	articles := articlesFromItems(parsed.Items)
	if len(articles) == 0 {
		slog.Debug("Feed has no articles", "feed_id", t.Feed.ID)
		return nil
	}

	resolver := identity.NewResolver()
	for _, article := range articles {
		resolver.RecordArticle(article)
	}
	idType := resolver.IDType()

	hasRecords, err := t.articleRepo.HasRecords(ctx, t.Feed.ID)
	if err != nil {
		return fmt.Errorf("failed to check article records: %w", err)
	}

	// First fetch primes the seen set without delivering: everything already
	// in the feed predates the subscription.
	if !hasRecords {
		keys := batchKeys(articles, idType)
		if err := t.articleRepo.RecordKeys(ctx, t.Feed.ID, idType, keys); err != nil {
			return fmt.Errorf("failed to prime article records: %w", err)
		}
		slog.Info("Task completed", "type", "ProcessFeed", "feed_id", t.Feed.ID,
			"duration", t.GetDuration(), "id_type", idType, "primed", len(keys))
		return nil
	}

	recorded, err := t.articleRepo.GetRecordedKeys(ctx, t.Feed.ID)
	if err != nil {
		return fmt.Errorf("failed to load article records: %w", err)
	}

	newArticles, newKeys := selectNewArticles(articles, idType, recorded)
	if len(newArticles) == 0 {
		slog.Debug("No new articles", "feed_id", t.Feed.ID, "total", len(articles))
		return nil
	}

	delivered, blocked := t.deliverArticles(ctx, newArticles)

	if err := t.articleRepo.RecordKeys(ctx, t.Feed.ID, idType, newKeys); err != nil {
		return fmt.Errorf("failed to record article keys: %w", err)
	}

	slog.Info("Task completed",
		"type", "ProcessFeed",
		"feed_id", t.Feed.ID,
		"duration", t.GetDuration(),
		"id_type", idType,
		"total", len(articles),
		"new", len(newArticles),
		"delivered", delivered,
		"blocked", blocked)

	return nil
}

func (t *ProcessFeedTask) fetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parsed, err := t.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return parsed, nil
}

// deliverArticles evaluates each destination's filters against the new
// articles and posts the passing ones. An evaluation error blocks the article
// for that destination; a destination failure does not stop the others.
func (t *ProcessFeedTask) deliverArticles(ctx context.Context, articles []identity.Article) (delivered, blocked int) {
	destinations, err := t.feedRepo.GetDestinations(ctx, t.Feed.ID)
	if err != nil {
		slog.Error("Failed to load destinations, articles recorded but not delivered",
			"feed_id", t.Feed.ID, "error", err)
		return 0, 0
	}

	for _, dest := range destinations {
		if !dest.Enabled {
			continue
		}

		expr, err := filter.Parse(dest.Filters)
		if err != nil {
			slog.Error("Invalid filter expression, blocking all articles for destination",
				"feed_id", t.Feed.ID, "destination_id", dest.ID, "error", err)
			blocked += len(articles)
			continue
		}

		var passing []identity.Article
		for _, article := range articles {
			result, err := filter.Evaluate(ctx, expr, article)
			if err != nil {
				slog.Error("Filter evaluation failed, blocking article",
					"feed_id", t.Feed.ID, "destination_id", dest.ID, "error", err)
				blocked++
				continue
			}
			if !result.Passed {
				slog.Debug("Article blocked by filters", "feed_id", t.Feed.ID,
					"destination_id", dest.ID, "explanations", result.ExplainBlocked)
				blocked++
				continue
			}
			passing = append(passing, article)
		}

		if err := t.dispatcher.Deliver(ctx, dest, t.Feed, passing); err != nil {
			slog.Error("Delivery failed", "feed_id", t.Feed.ID, "destination_id", dest.ID, "error", err)
			continue
		}
		delivered += len(passing)
	}

	return delivered, blocked
}

// articlesFromItems flattens parsed feed items into field maps. Only
// populated fields are set, so identity resolution sees genuinely missing
// fields as absent.
func articlesFromItems(items []*gofeed.Item) []identity.Article {
	articles := make([]identity.Article, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		article := identity.Article{}
		setField(article, "guid", item.GUID)
		setField(article, "title", item.Title)
		setField(article, "pubdate", item.Published)
		setField(article, "link", item.Link)
		setField(article, "description", item.Description)
		if item.Author != nil {
			setField(article, "author", item.Author.Name)
		}
		if len(item.Categories) > 0 {
			setField(article, "categories", strings.Join(item.Categories, ","))
		}
		articles = append(articles, article)
	}
	return articles
}

func setField(article identity.Article, name, value string) {
	if value != "" {
		article[name] = value
	}
}

func batchKeys(articles []identity.Article, idType string) []string {
	keys := make([]string, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))
	for _, article := range articles {
		key := identity.IDValue(article, idType)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// selectNewArticles returns the articles whose dedup key has not been
// recorded, skipping intra-batch duplicates under the chosen scheme.
func selectNewArticles(articles []identity.Article, idType string, recorded map[string]struct{}) ([]identity.Article, []string) {
	var newArticles []identity.Article
	var newKeys []string
	seen := make(map[string]struct{}, len(articles))

	for _, article := range articles {
		key := identity.IDValue(article, idType)
		if key == "" {
			continue
		}
		if _, old := recorded[key]; old {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		newArticles = append(newArticles, article)
		newKeys = append(newKeys, key)
	}

	return newArticles, newKeys
}
