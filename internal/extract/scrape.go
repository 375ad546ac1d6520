package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/fetch"
	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/worker"
)

// DefaultSponsorLinkCap bounds how many sponsor pages a crawl visits.
const DefaultSponsorLinkCap = 250

// Fetcher returns the HTML a server sends for url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Page, error)
}

// Renderer returns the DOM of url after its scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (fetch.Page, error)
}

// ScrapeOptions tunes sponsor page visits.
type ScrapeOptions struct {
	// SponsorPageTimeout bounds each sponsor page fetch. Zero uses the worker default.
	SponsorPageTimeout time.Duration
	// RateLimitRPS spaces sponsor page fetches. Zero disables limiting.
	RateLimitRPS float64
}

// Scraper extracts companies from a conference site. Renderer is optional;
// without it the rendered pass is skipped.
type Scraper struct {
	Fetcher  Fetcher
	Renderer Renderer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Options  ScrapeOptions
}

// ScrapeCompanies extracts companies from the page at url, from up to
// sponsorLinkCap of its sponsor sub-pages, and from a rendered copy of the
// page. Sponsor pages and the rendered pass are best effort. An error is
// returned only when the page could be loaded neither statically nor
// rendered, or when ctx ends.
func (s *Scraper) ScrapeCompanies(ctx context.Context, url string, sponsorLinkCap int) ([]Company, error) {
	log := logging.OrNop(s.Logger).With(zap.String("url", url))

	var companies []Company
	page, staticErr := s.Fetcher.Fetch(ctx, url)
	if staticErr != nil {
		s.Metrics.FetchFailed(metrics.KindHomepage)
		log.Warn("homepage fetch failed", zap.String("error", redact.Secrets(staticErr.Error())))
	} else {
		s.Metrics.PageFetched(metrics.KindHomepage)
		doc, err := ParseHTML(page.HTML)
		if err != nil {
			return nil, err
		}
		companies = s.record(ExtractFromDocument(doc, page.FinalURL))

		links := FindSponsorLinks(doc, page.FinalURL)
		if sponsorLinkCap < 0 {
			sponsorLinkCap = 0
		}
		if len(links) > sponsorLinkCap {
			links = links[:sponsorLinkCap]
		}
		if len(links) > 0 {
			log.Info("visiting sponsor pages", zap.Int("links", len(links)))
			found, err := s.visitSponsorPages(ctx, links, log)
			if err != nil {
				return nil, err
			}
			companies = append(companies, found...)
		}
		companies = Dedupe(companies)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rendered, renderErr := s.renderPass(ctx, url)
	if renderErr != nil {
		if staticErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, staticErr)
		}
		log.Warn("rendered pass skipped", zap.String("error", redact.Secrets(renderErr.Error())))
		return companies, nil
	}
	return Dedupe(append(companies, rendered...)), nil
}

func (s *Scraper) visitSponsorPages(ctx context.Context, links []string, log *zap.Logger) ([]Company, error) {
	var out []Company
	_, err := worker.ProcessAllWithCallback(ctx, links, core.ProcessFunc[string, Company](s.scrapeSponsorPage),
		func(r worker.Result[string, Company]) error {
			switch {
			case r.Err != nil:
				s.Metrics.FetchFailed(metrics.KindSponsorPage)
				log.Debug("sponsor page skipped", zap.String("link", r.Input), zap.String("error", redact.Secrets(r.Err.Error())))
			case r.Output.Name != "":
				s.Metrics.CompanyExtracted(hintLabel(r.Output.SourceHint))
				out = append(out, r.Output)
			}
			return nil
		},
		worker.Options{
			RequestTimeout: s.Options.SponsorPageTimeout,
			RateLimitRPS:   s.Options.RateLimitRPS,
			FailurePolicy:  worker.FailurePolicyPartialOutput,
		},
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scrapeSponsorPage returns the page's company, or a zero Company when no
// name could be found on it.
func (s *Scraper) scrapeSponsorPage(ctx context.Context, link string) (Company, error) {
	page, err := s.Fetcher.Fetch(ctx, link)
	if err != nil {
		return Company{}, err
	}
	s.Metrics.PageFetched(metrics.KindSponsorPage)
	doc, err := ParseHTML(page.HTML)
	if err != nil {
		return Company{}, err
	}
	name, hint, ok := ExtractSponsorName(doc)
	if !ok {
		return Company{}, nil
	}
	return Company{Name: name, SourceURL: page.FinalURL, SourceHint: hint}, nil
}

func (s *Scraper) renderPass(ctx context.Context, url string) ([]Company, error) {
	if s.Renderer == nil {
		return nil, errRenderDisabled
	}
	page, err := s.Renderer.Render(ctx, url)
	if err != nil {
		s.Metrics.FetchFailed(metrics.KindRendered)
		return nil, err
	}
	s.Metrics.PageFetched(metrics.KindRendered)
	found, err := ExtractFromHTML(page.HTML, page.FinalURL)
	if err != nil {
		return nil, err
	}
	return s.record(found), nil
}

func (s *Scraper) record(found []Company) []Company {
	for _, c := range found {
		s.Metrics.CompanyExtracted(hintLabel(c.SourceHint))
	}
	return found
}

// hintLabel drops the heading text from near-heading hints.
func hintLabel(hint string) string {
	if strings.HasPrefix(hint, HintNearHeadingPrefix) {
		return "near heading"
	}
	return hint
}

var errRenderDisabled = errors.New("rendering disabled")
