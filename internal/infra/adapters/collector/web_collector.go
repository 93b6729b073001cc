package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

var _ adapter.BrandCollector = (*WebCollector)(nil)

const (
	maxHeadlinesPerTag = 5
	maxParagraphs      = 10
	maxTextContent     = 1000
	socialNote         = "Social scraping requires API access - using brand name analysis"
)

type Options struct {
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxBodyBytes   int64
}

// WebCollector scrapes a brand's public website. Social handles are not
// fetched; brand names are mapped to a guessed www.<name>.com site.
type WebCollector struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	conv    *md.Converter
	log     *zerolog.Logger
}

func NewWebCollector(opts Options, logger *zerolog.Logger) *WebCollector {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return &WebCollector{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: lim,
		opts:    opts,
		conv:    md.NewConverter("", true, nil),
		log:     logger,
	}
}

// DetectInputType classifies raw brand input.
func DetectInputType(in string) model.InputType {
	s := strings.ToLower(strings.TrimSpace(in))
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "www."):
		return model.InputWebsite
	case strings.HasPrefix(s, "@"):
		return model.InputSocial
	default:
		return model.InputBrand
	}
}

// GuessWebsite builds the likely homepage for a plain brand name.
func GuessWebsite(brand string) string {
	clean := strings.ToLower(strings.Join(strings.Fields(brand), ""))
	return "https://www." + clean + ".com"
}

func (c *WebCollector) Collect(ctx context.Context, brand string, inputType model.InputType) (*model.BrandData, error) {
	log := logging.With(ctx, c.log)
	if inputType == "" || inputType == model.InputAuto {
		inputType = DetectInputType(brand)
	}
	data := &model.BrandData{Brand: brand, InputType: inputType, CollectedAt: time.Now().UTC()}

	var url string
	switch inputType {
	case model.InputSocial:
		data.Brand = strings.TrimPrefix(strings.TrimSpace(brand), "@")
		data.Description = socialNote
		return data, nil
	case model.InputWebsite:
		url = brand
		if !strings.HasPrefix(url, "http") {
			url = "https://" + url
		}
	default:
		url = GuessWebsite(brand)
	}
	data.URL = url

	if err := c.scrape(ctx, url, data); err != nil {
		data.Error = err.Error()
		log.Warn().Err(err).Str("url", url).Msg("website scrape failed")
		return data, fmt.Errorf("scrape %s: %w: %v", url, domain.ErrCollection, err)
	}
	if inputType == model.InputWebsite && data.Title != "" {
		data.Brand = data.Title
	}
	log.Debug().Str("url", url).Int("headlines", len(data.Headlines)).Msg("website scraped")
	return data, nil
}

func (c *WebCollector) scrape(ctx context.Context, url string, data *model.BrandData) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	c.extract(doc, data)
	return nil
}

func (c *WebCollector) extract(doc *goquery.Document, data *model.BrandData) {
	data.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		data.Description = strings.TrimSpace(desc)
	}
	for _, tag := range []string{"h1", "h2"} {
		doc.Find(tag).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if t := strings.TrimSpace(s.Text()); t != "" {
				data.Headlines = append(data.Headlines, t)
			}
			return i+1 < maxHeadlinesPerTag
		})
	}

	var html strings.Builder
	doc.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); t != "" {
			data.Paragraphs = append(data.Paragraphs, t)
		}
		if h, err := goquery.OuterHtml(s); err == nil {
			html.WriteString(h)
		}
		return i+1 < maxParagraphs
	})

	text := strings.Join(data.Paragraphs, " ")
	if html.Len() > 0 {
		if mdText, err := c.conv.ConvertString(html.String()); err == nil && strings.TrimSpace(mdText) != "" {
			text = mdText
		}
	}
	data.TextContent = truncateRunes(strings.TrimSpace(text), maxTextContent)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
