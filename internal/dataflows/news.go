package dataflows

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/models"
)

// NewsClient scrapes headlines and scores them with a small sentiment
// lexicon. The score feeds the environment as an auxiliary feature.
type NewsClient struct {
	client *resty.Client
	cache  *CacheManager
}

func NewNewsClient(cfg *config.Config) *NewsClient {
	cacheDir := filepath.Join(cfg.DataCacheDir, "news")
	cache := NewCacheManager(cacheDir, 2*time.Hour, cfg.CacheEnabled)

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; autoagent/1.0)")

	return &NewsClient{
		client: client,
		cache:  cache,
	}
}

// NewsParams represents parameters for a headline search.
type NewsParams struct {
	Query      string    `json:"query"`
	Language   string    `json:"language"`
	Country    string    `json:"country"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	MaxResults int       `json:"max_results"`
}

// GetHeadlines scrapes Google News for articles matching the params.
func (nc *NewsClient) GetHeadlines(params NewsParams, cfg *config.Config) ([]*models.NewsArticle, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	if params.Language == "" {
		params.Language = "en"
	}
	if params.Country == "" {
		params.Country = "US"
	}
	if params.MaxResults <= 0 {
		params.MaxResults = 20
	}

	var cached []*models.NewsArticle
	if nc.cache.Get("google_news", "search", params, &cached) {
		return cached, nil
	}

	searchURL := buildNewsURL(params)

	var result []*models.NewsArticle
	err := WithRetry(DefaultRetryConfig(), func() error {
		resp, err := nc.client.R().Get(searchURL)
		if err != nil {
			return fmt.Errorf("failed to fetch news: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("HTTP error %d when fetching news", resp.StatusCode())
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			return fmt.Errorf("failed to parse HTML: %w", err)
		}

		result = parseHeadlines(doc)
		if len(result) > params.MaxResults {
			result = result[:params.MaxResults]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	nc.cache.Set("google_news", "search", params, result)

	filePath := filepath.Join(cfg.DataDir, "news_data",
		fmt.Sprintf("news_%s_%s.json",
			strings.ReplaceAll(params.Query, " ", "_"),
			time.Now().Format("2006-01-02")))
	SaveDataToFile(result, filePath)

	return result, nil
}

// SentimentScore averages the lexicon score over a set of articles.
// Returns 0 for an empty slice.
func SentimentScore(articles []*models.NewsArticle) float64 {
	if len(articles) == 0 {
		return 0
	}
	var total float64
	for _, a := range articles {
		total += scoreText(a.Title + " " + a.Content)
	}
	return total / float64(len(articles))
}

var (
	positiveWords = []string{
		"gain", "gains", "surge", "rally", "record", "beat", "beats",
		"growth", "profit", "upgrade", "strong", "bullish", "soar", "rise",
	}
	negativeWords = []string{
		"loss", "losses", "drop", "plunge", "miss", "misses", "decline",
		"downgrade", "weak", "bearish", "fall", "crash", "cut", "lawsuit",
	}
)

// scoreText returns a score in [-1, 1] based on lexicon hits.
func scoreText(text string) float64 {
	text = strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func buildNewsURL(params NewsParams) string {
	baseURL := "https://news.google.com/search"

	query := url.QueryEscape(params.Query)
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() {
		dateQuery := fmt.Sprintf(" after:%s before:%s",
			params.StartDate.Format("2006-01-02"),
			params.EndDate.Format("2006-01-02"))
		query += url.QueryEscape(dateQuery)
	}

	return fmt.Sprintf("%s?q=%s&hl=%s&gl=%s&ceid=%s:%s",
		baseURL, query, params.Language, params.Country, params.Country, params.Language)
}

func parseHeadlines(doc *goquery.Document) []*models.NewsArticle {
	var articles []*models.NewsArticle

	doc.Find("article").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3, h4").First().Text())
		if title == "" {
			return
		}

		link, _ := s.Find("a").First().Attr("href")
		source := strings.TrimSpace(s.Find("div[data-n-tid]").First().Text())

		article := &models.NewsArticle{
			Title:       title,
			URL:         link,
			Source:      source,
			PublishedAt: time.Now(),
		}
		article.Sentiment = scoreText(title)
		articles = append(articles, article)
	})

	return articles
}
