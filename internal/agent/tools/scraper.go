package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/audience-andy/server/internal/agent/model"
	logx "github.com/audience-andy/server/pkg/logger"
)

const ScraperName = "firecrawler"

const (
	errInvalidURL     = "Invalid URL format. Please provide a URL starting with http:// or https://."
	errFictionalURL   = "The URL appears to be a fictional or example domain. Please provide a real product URL."
	errScraperNoKey   = "FIRECRAWL_API_KEY not set in environment variables"
	maxFeatures       = 10
	maxImages         = 5
	defaultCrawlDepth = 1
)

var fictionalDomains = []string{
	"example.com", "exampleheadphones.com", "domain.com",
	"example.org", "placeholder", "sample", "test.com",
}

var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\d+(?:\.\d{2})?`),
		regexp.MustCompile(`Price:?\s*\$?\d+(?:\.\d{2})?`),
		regexp.MustCompile(`Cost:?\s*\$?\d+(?:\.\d{2})?`),
	}
	bulletItem     = regexp.MustCompile(`^\s*(?:[-•*]|\d+\.)\s+(.+)$`)
	markdownImage  = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)`)
	tableSeparator = regexp.MustCompile(`^\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?$`)
)

type scraperConfig struct {
	APIKey  string
	BaseURL string
	Client  *apiClient
}

// Scraper fetches a product page through Firecrawl and extracts product data
// from the returned markdown.
type Scraper struct {
	base
	apiKey  string
	baseURL string
	client  *apiClient
}

func NewScraper(cfg model.ToolsConfig) *Scraper {
	return newScraper(scraperConfig{
		APIKey:  cfg.FirecrawlAPIKey,
		BaseURL: cfg.FirecrawlBaseURL,
		Client:  newAPIClient(cfg.RequestTimeout, cfg.RatePerSecond, cfg.RateBurst),
	})
}

func newScraper(cfg scraperConfig) *Scraper {
	s := &Scraper{
		base: base{
			name: ScraperName,
			desc: "Analyzes a product webpage to extract detailed information. Use this to obtain comprehensive product details including features, pricing, specifications, and positioning directly from a URL.",
			params: map[string]*schema.ParameterInfo{
				"url": {
					Type:     schema.String,
					Desc:     "The product webpage URL to analyze (must be a valid http/https URL)",
					Required: true,
				},
				"depth": {
					Type: schema.Integer,
					Desc: "Crawling depth (1 for basic info, 2 for more details, 3 for comprehensive analysis)",
				},
			},
			required: []string{"url"},
		},
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
	}
	if s.client == nil {
		s.client = newAPIClient(0, 0, 0)
	}
	if s.apiKey == "" {
		s.initErr = errScraperNoKey
		logx.Error().Str("tool", ScraperName).Msg("Failed to initialize scraper: FIRECRAWL_API_KEY not set")
	}
	return s
}

// ValidateURL applies the scheme and fictional-domain checks, returning the
// user facing error message or "".
func ValidateURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errInvalidURL
	}
	lower := strings.ToLower(url)
	for _, d := range fictionalDomains {
		if strings.Contains(lower, d) {
			return errFictionalURL
		}
	}
	return ""
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeMetadata struct {
	Title       string `json:"title"`
	OGTitle     string `json:"ogTitle"`
	Description string `json:"description"`
	OGImage     string `json:"ogImage"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    *struct {
		Markdown string         `json:"markdown"`
		HTML     string         `json:"html"`
		Metadata scrapeMetadata `json:"metadata"`
	} `json:"data"`
}

func (s *Scraper) Execute(ctx context.Context, params map[string]any) (model.ToolResult, error) {
	if !s.IsAvailable() {
		return model.Failed(s.name, "Firecrawler tool is not available: "+s.initErr), nil
	}

	url := strings.TrimSpace(getString(params, "url"))
	depth := getInt(params, "depth", defaultCrawlDepth, 1, 3)
	logx.Info().Str("tool", s.name).Str("url", url).Int("depth", depth).Msg("Scraping product page")

	if msg := ValidateURL(url); msg != "" {
		logx.Warn().Str("tool", s.name).Str("url", url).Msg(msg)
		return model.Failed(s.name, msg), nil
	}

	body, err := json.Marshal(scrapeRequest{URL: url, Formats: []string{"markdown", "html"}})
	if err != nil {
		return model.ToolResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return model.ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	var resp scrapeResponse
	if err := s.client.do(ctx, req, &resp); err != nil {
		return model.ToolResult{}, fmt.Errorf("firecrawl scrape: %w", err)
	}
	if !resp.Success || resp.Data == nil {
		msg := resp.Error
		if msg == "" {
			msg = "Empty result returned from Firecrawl API"
		}
		return model.Failed(s.name, msg), nil
	}

	product := parseProductPage(resp.Data.Markdown, resp.Data.Metadata)
	logx.Info().Str("tool", s.name).Str("title", product.Title).Str("price", product.Price).Msg("Parsed product page")
	return model.Succeeded(s.name, product), nil
}

func parseProductPage(markdown string, meta scrapeMetadata) model.ProductData {
	p := model.ProductData{
		Title:          strings.TrimSpace(meta.Title),
		Features:       []string{},
		Images:         []string{},
		Specifications: map[string]string{},
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(meta.OGTitle)
	}

	for _, re := range pricePatterns {
		if m := re.FindString(markdown); m != "" {
			p.Price = m
			break
		}
	}

	var (
		paragraph []string
		lastKey   string
	)
	flush := func() {
		if p.Description == "" && len(paragraph) > 0 {
			p.Description = strings.Join(paragraph, " ")
		}
		paragraph = paragraph[:0]
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "|"):
			flush()
			if tableSeparator.MatchString(line) {
				// the row above was a header
				delete(p.Specifications, lastKey)
				lastKey = ""
				continue
			}
			if k, v, ok := tableRow(line); ok {
				p.Specifications[k] = v
				lastKey = k
			}
		case bulletItem.MatchString(line):
			flush()
			item := strings.TrimSpace(bulletItem.FindStringSubmatch(line)[1])
			if item != "" && len(p.Features) < maxFeatures {
				p.Features = append(p.Features, item)
			}
		case strings.HasPrefix(line, "#"):
			flush()
			if p.Title == "" {
				p.Title = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
		case strings.HasPrefix(line, "!["):
			flush()
		default:
			if p.Description == "" {
				paragraph = append(paragraph, line)
			}
		}
	}
	flush()
	if p.Description == "" {
		p.Description = strings.TrimSpace(meta.Description)
	}

	seen := map[string]bool{}
	addImage := func(src string) {
		if src == "" || seen[src] || len(p.Images) >= maxImages {
			return
		}
		seen[src] = true
		p.Images = append(p.Images, src)
	}
	addImage(strings.TrimSpace(meta.OGImage))
	for _, m := range markdownImage.FindAllStringSubmatch(markdown, -1) {
		addImage(m[1])
	}
	return p
}

// tableRow reads a two column markdown table row.
func tableRow(line string) (string, string, bool) {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	if len(cells) != 2 {
		return "", "", false
	}
	k := strings.TrimSpace(strings.Trim(strings.TrimSpace(cells[0]), "*"))
	v := strings.TrimSpace(cells[1])
	if k == "" || v == "" {
		return "", "", false
	}
	return k, v, true
}
