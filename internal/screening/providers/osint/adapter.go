// Package osint scrapes a public search-results page for mentions of the
// subject and turns them into an adverse-media score and an identity signal.
package osint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	adversePenalty = 120.0
	userAgent      = "PropertyVet-OSINT/1.0"
)

// DefaultAdverseTerms are matched case-insensitively against result snippets.
var DefaultAdverseTerms = []string{"arrest", "convicted", "fraud", "eviction", "lawsuit", "scam", "warrant"}

// Config describes the search source.
type Config struct {
	ID models.ProviderID
	// SearchURL receives the query as the q parameter.
	SearchURL    string
	AdverseTerms []string
}

// Adapter queries one search source.
type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config, client *http.Client) (*Adapter, error) {
	if cfg.ID == "" {
		cfg.ID = models.ProviderOSINT
	}
	if _, err := url.ParseRequestURI(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("osint %s: invalid search url: %w", cfg.ID, err)
	}
	if len(cfg.AdverseTerms) == 0 {
		cfg.AdverseTerms = DefaultAdverseTerms
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

func (a *Adapter) ID() models.ProviderID { return a.cfg.ID }

func (a *Adapter) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol:    providers.ProtocolScrape,
		Categories:  []models.Category{models.CategoryIdentity, models.CategoryBackground},
		Version:     "osint-html-v1",
		Description: "public web mentions",
	}
}

// hit is one parsed search result.
type hit struct {
	title   string
	snippet string
	profile bool
}

func (a *Adapter) Check(ctx context.Context, req models.CheckRequest) (models.ProviderResult, error) {
	doc, err := a.fetch(ctx, req.Subject)
	if err != nil {
		return models.ProviderResult{}, err
	}

	hits := parse(doc)
	name := strings.ToLower(req.Subject.FullName)

	var adverse []string
	identityMatch := false
	for _, h := range hits {
		text := strings.ToLower(h.title + " " + h.snippet)
		if !strings.Contains(text, name) {
			continue
		}
		if h.profile {
			identityMatch = true
		}
		for _, term := range a.cfg.AdverseTerms {
			if strings.Contains(text, term) {
				adverse = append(adverse, term)
				break
			}
		}
	}

	result := models.ProviderResult{
		Provider:   a.cfg.ID,
		Status:     models.StatusOK,
		Score:      models.Float(providers.ClampScore(models.MaxScore - adversePenalty*float64(len(adverse)))),
		Confidence: models.Float(min(90, 30+10*float64(len(hits)))),
		Findings: map[string]any{
			"results":          len(hits),
			"adverse_mentions": len(adverse),
			"adverse_terms":    adverse,
		},
	}

	verdicts := map[models.Category]models.Verdict{}
	if identityMatch {
		verdicts[models.CategoryIdentity] = models.VerdictConfirmed
	}
	switch {
	case len(adverse) > 0:
		result.Flags = append(result.Flags, "adverse_media")
		verdicts[models.CategoryBackground] = models.VerdictNegative
	case len(hits) > 0:
		verdicts[models.CategoryBackground] = models.VerdictConfirmed
	}
	if len(verdicts) > 0 {
		result.Verdicts = verdicts
	}
	return result, nil
}

func (a *Adapter) fetch(ctx context.Context, s models.Subject) (*goquery.Document, error) {
	u, _ := url.Parse(a.cfg.SearchURL)
	q := u.Query()
	q.Set("q", fmt.Sprintf("%q %s", s.FullName, s.Address))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, a.cfg.ID, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, providers.NewProviderError(providers.ErrorTimeout, a.cfg.ID, "search abandoned", err)
		}
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, a.cfg.ID, "search unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, providers.NewProviderError(providers.ErrorRateLimited, a.cfg.ID, "search throttled", nil)
	case resp.StatusCode >= 500:
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, a.cfg.ID, "search returned "+resp.Status, nil)
	case resp.StatusCode != http.StatusOK:
		return nil, providers.NewProviderError(providers.ErrorBadData, a.cfg.ID, "search returned "+resp.Status, nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, a.cfg.ID, "parse search page", err)
	}
	return doc, nil
}

// parse reads results shaped as
//
//	<div class="result" data-kind="profile"><a class="title">..</a><p class="snippet">..</p></div>
func parse(doc *goquery.Document) []hit {
	var hits []hit
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		kind, _ := sel.Attr("data-kind")
		hits = append(hits, hit{
			title:   strings.TrimSpace(sel.Find(".title").First().Text()),
			snippet: strings.TrimSpace(sel.Find(".snippet").First().Text()),
			profile: kind == "profile",
		})
	})
	return hits
}
