package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/audience-andy/server/internal/agent/model"
	logx "github.com/audience-andy/server/pkg/logger"
)

const SerpName = "serp_analysis"

const (
	errSerpNoKey       = "SERPAPI_KEY not set in environment variables"
	defaultResultCount = 10
	maxCompetitors     = 5
	maxKeywords        = 10
	searchLocation     = "United States"
)

var (
	resultDomain = regexp.MustCompile(`https?://(?:www\.)?([^/]+)`)
	wordPattern  = regexp.MustCompile(`\b\w+\b`)

	marketplaces = map[string]bool{
		"amazon": true, "ebay": true, "walmart": true, "bestbuy": true, "target": true,
	}
	stopwords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "is": true,
		"are": true, "of": true, "for": true, "in": true, "to": true, "with": true,
	}
)

type serpConfig struct {
	APIKey  string
	BaseURL string
	Client  *apiClient
}

// SerpAnalyzer derives competitors and related keywords from Google organic
// results fetched through SerpAPI.
type SerpAnalyzer struct {
	base
	apiKey  string
	baseURL string
	client  *apiClient
}

func NewSerpAnalyzer(cfg model.ToolsConfig) *SerpAnalyzer {
	return newSerpAnalyzer(serpConfig{
		APIKey:  cfg.SerpAPIKey,
		BaseURL: cfg.SerpBaseURL,
		Client:  newAPIClient(cfg.RequestTimeout, cfg.RatePerSecond, cfg.RateBurst),
	})
}

func newSerpAnalyzer(cfg serpConfig) *SerpAnalyzer {
	s := &SerpAnalyzer{
		base: base{
			name: SerpName,
			desc: "Conducts market research using search engine results. Analyzes search results for a product query to identify competitors, related products, and popular keywords.",
			params: map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "The search query for the product or category to analyze",
					Required: true,
				},
				"results_count": {
					Type: schema.Integer,
					Desc: "Number of search results to analyze (5-20)",
				},
			},
			required: []string{"query"},
		},
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
	}
	if s.client == nil {
		s.client = newAPIClient(0, 0, 0)
	}
	if s.apiKey == "" {
		s.initErr = errSerpNoKey
		logx.Error().Str("tool", SerpName).Msg("Failed to initialize SERP analyzer: SERPAPI_KEY not set")
	}
	return s
}

type organicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serpResponse struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

func (s *SerpAnalyzer) Execute(ctx context.Context, params map[string]any) (model.ToolResult, error) {
	if !s.IsAvailable() {
		return model.Failed(s.name, "SerpAPI tool is not available: "+s.initErr), nil
	}

	query := strings.TrimSpace(getString(params, "query"))
	count := getInt(params, "results_count", defaultResultCount, 5, 20)
	if query == "" {
		return model.Failed(s.name, "Please provide a valid search query."), nil
	}
	logx.Info().Str("tool", s.name).Str("query", query).Int("results", count).Msg("Analyzing search results")

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("num", strconv.Itoa(count))
	q.Set("api_key", s.apiKey)
	q.Set("location", searchLocation)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return model.ToolResult{}, err
	}

	var resp serpResponse
	if err := s.client.do(ctx, req, &resp); err != nil {
		return model.ToolResult{}, fmt.Errorf("serpapi search: %w", err)
	}
	if resp.Error != "" && len(resp.OrganicResults) == 0 {
		return model.Failed(s.name, resp.Error), nil
	}
	if len(resp.OrganicResults) == 0 {
		msg := "No organic results found for query: " + query
		logx.Warn().Str("tool", s.name).Msg(msg)
		return model.Failed(s.name, msg), nil
	}

	market := s.extractMarketData(resp.OrganicResults, query)
	logx.Info().Str("tool", s.name).
		Int("competitors", len(market.Competitors)).
		Int("keywords", len(market.Keywords)).
		Msg("Market data extracted")
	return model.Succeeded(s.name, market), nil
}

func (s *SerpAnalyzer) extractMarketData(results []organicResult, query string) model.MarketData {
	var (
		competitors []string
		keywords    []string
		known       = map[string]bool{}
		seenWords   = map[string]bool{}
		frequency   = map[string]int{}
	)
	lowerQuery := strings.ToLower(query)
	title := cases.Title(language.English)

	for _, r := range results {
		if m := resultDomain.FindStringSubmatch(r.Link); m != nil {
			company := strings.ToLower(strings.SplitN(m[1], ".", 2)[0])
			frequency[company]++
			if !marketplaces[company] && !known[company] {
				known[company] = true
				competitors = append(competitors, title.String(company))
			}
		}

		text := strings.ToLower(r.Title + " " + r.Snippet)
		for _, w := range wordPattern.FindAllString(text, -1) {
			if len(w) <= 3 || stopwords[w] || seenWords[w] || isDigits(w) {
				continue
			}
			if strings.Contains(lowerQuery, w) {
				continue
			}
			seenWords[w] = true
			keywords = append(keywords, w)
		}
	}

	sort.SliceStable(competitors, func(i, j int) bool {
		return frequency[strings.ToLower(competitors[i])] > frequency[strings.ToLower(competitors[j])]
	})

	return model.MarketData{
		Competitors:  headOf(competitors, maxCompetitors),
		Keywords:     headOf(keywords, maxKeywords),
		SearchVolume: "medium",
		Query:        query,
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func headOf(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
