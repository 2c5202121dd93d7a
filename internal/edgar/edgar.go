// Package edgar fetches 10-K filings from SEC EDGAR. It resolves the most
// recent 10-K through the submissions API, downloads the primary document,
// and extracts the narrative sections used for retrieval.
package edgar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/models"
)

// ErrNoTenK is returned when the submissions feed has no 10-K filing.
var ErrNoTenK = errors.New("no 10-K filing found")

const maxSectionChars = 200_000

type Client struct {
	cfg        config.EDGARConfig
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

func NewClient(cfg config.EDGARConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// submissions mirrors the parts of the EDGAR submissions JSON we need.
type submissions struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

type tenKRef struct {
	CompanyName     string
	AccessionNumber string
	FilingDate      string
	PrimaryDocument string
}

// LatestTenK locates the most recent 10-K in the company's submissions feed.
func (c *Client) LatestTenK(ctx context.Context, cik string) (*tenKRef, error) {
	u := fmt.Sprintf("%s/CIK%s.json", strings.TrimRight(c.cfg.SubmissionsURL, "/"), cik)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching submissions for CIK %s: %w", cik, err)
	}

	var subs submissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("parsing submissions for CIK %s: %w", cik, err)
	}

	recent := subs.Filings.Recent
	for i, form := range recent.Form {
		if form != "10-K" {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) || i >= len(recent.PrimaryDocument) {
			break
		}
		return &tenKRef{
			CompanyName:     subs.Name,
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      recent.FilingDate[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		}, nil
	}
	return nil, fmt.Errorf("%w for CIK %s", ErrNoTenK, cik)
}

// Download fetches the company's latest 10-K and returns a parsed filing.
func (c *Client) Download(ctx context.Context, company models.Company) (*models.Filing, error) {
	ref, err := c.LatestTenK(ctx, company.CIK)
	if err != nil {
		return nil, err
	}

	docURL := c.documentURL(company.CIK, ref.AccessionNumber, ref.PrimaryDocument)
	body, err := c.get(ctx, docURL)
	if err != nil {
		return nil, fmt.Errorf("downloading 10-K for %s: %w", company.Ticker, err)
	}

	text, err := extractText(string(body), docURL)
	if err != nil {
		return nil, fmt.Errorf("extracting text for %s: %w", company.Ticker, err)
	}

	name := ref.CompanyName
	if name == "" {
		name = company.Name
	}
	sum := sha256.Sum256([]byte(text))
	return &models.Filing{
		Ticker:          company.Ticker,
		CompanyName:     name,
		CIK:             company.CIK,
		FilingDate:      ref.FilingDate,
		AccessionNumber: ref.AccessionNumber,
		SourceURL:       docURL,
		ContentHash:     hex.EncodeToString(sum[:])[:16],
		Sections:        SplitSections(text),
		DownloadedAt:    time.Now().UTC(),
	}, nil
}

// documentURL builds the archive URL for a primary filing document.
func (c *Client) documentURL(cik, accession, doc string) string {
	cikNum := strings.TrimLeft(cik, "0")
	if cikNum == "" {
		cikNum = "0"
	}
	accFlat := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), cikNum, accFlat, doc)
}

// get performs a rate-limited GET with retries on transient failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	tries := c.cfg.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		c.throttle(ctx)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				lastErr = fmt.Errorf("EDGAR returned status %d", resp.StatusCode)
			default:
				return nil, fmt.Errorf("EDGAR returned status %d for %s", resp.StatusCode, rawURL)
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// throttle enforces the configured delay between EDGAR requests (fair use).
func (c *Client) throttle(ctx context.Context) {
	if c.cfg.RequestDelay <= 0 {
		return
	}
	c.mu.Lock()
	wait := c.cfg.RequestDelay - time.Since(c.lastCall)
	c.lastCall = time.Now().Add(wait)
	c.mu.Unlock()
	if wait <= 0 {
		return
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// extractText strips boilerplate from filing HTML and returns plain text.
func extractText(html, sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		// Filings with unusual markup defeat readability; fall back to a
		// bare tag strip so section extraction still has text to work with.
		return stripTags(html), nil
	}
	return article.TextContent, nil
}

var (
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</\w+>`)
	spaceRe  = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

func stripTags(html string) string {
	html = scriptRe.ReplaceAllString(html, " ")
	html = tagRe.ReplaceAllString(html, " ")
	return spaceRe.ReplaceAllString(html, " ")
}

// Section boundary markers. 10-K items follow a fixed order, so each section
// runs from its own heading to the next item's heading.
var sectionBounds = []struct {
	key   string
	start *regexp.Regexp
	end   *regexp.Regexp
}{
	{
		key:   models.SectionBusiness,
		start: regexp.MustCompile(`(?i)item\s*1\s*[\.\:\-]?\s*business`),
		end:   regexp.MustCompile(`(?i)item\s*1A\s*[\.\:\-]?\s*risk\s*factors`),
	},
	{
		key:   models.SectionRiskFactors,
		start: regexp.MustCompile(`(?i)item\s*1A\s*[\.\:\-]?\s*risk\s*factors`),
		end:   regexp.MustCompile(`(?i)item\s*1B\s*[\.\:\-]?\s*unresolved`),
	},
	{
		key:   models.SectionMDA,
		start: regexp.MustCompile(`(?i)item\s*7\s*[\.\:\-]?\s*management['\x60s]*\s*discussion`),
		end:   regexp.MustCompile(`(?i)item\s*7A\s*[\.\:\-]?\s*quantitative`),
	},
	{
		key:   models.SectionMarketRisk,
		start: regexp.MustCompile(`(?i)item\s*7A\s*[\.\:\-]?\s*quantitative`),
		end:   regexp.MustCompile(`(?i)item\s*8\s*[\.\:\-]?\s*financial\s*statements`),
	},
}

// SplitSections carves the tracked 10-K items out of the full filing text.
// Items typically appear twice (table of contents, then body); the last start
// match is used so the body copy wins. Missing sections are simply absent.
func SplitSections(text string) map[string]string {
	sections := make(map[string]string)
	for _, b := range sectionBounds {
		starts := b.start.FindAllStringIndex(text, -1)
		if len(starts) == 0 {
			continue
		}
		start := starts[len(starts)-1][0]
		rest := text[start:]

		end := len(rest)
		// Skip the heading itself before looking for the terminator, since
		// adjacent items can share prefix text.
		if loc := b.end.FindStringIndex(rest[1:]); loc != nil {
			end = loc[0] + 1
		}
		section := strings.TrimSpace(rest[:end])
		if len(section) > maxSectionChars {
			section = section[:maxSectionChars]
		}
		if section != "" {
			sections[b.key] = section
		}
	}
	return sections
}

// ParseCIK validates a CIK string and returns the zero-padded form EDGAR uses.
func ParseCIK(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid CIK %q", raw)
	}
	return fmt.Sprintf("%010d", n), nil
}
