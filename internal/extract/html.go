package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/fetch"
	"github.com/prodexio/prodex/internal/geo"
	"github.com/prodexio/prodex/internal/normalize"
	"github.com/prodexio/prodex/internal/profile"
)

var (
	digitsRE = regexp.MustCompile(`\d+`)
	nameRE   = regexp.MustCompile(`[\p{L}\p{N}_ ]+`)
)

// fieldRule binds a CSS selector to the coercion applied to its candidate
// values. The table below is the full set of directly-mapped detail-page
// fields; contact name, phone, service cost, and the address/geo pair need
// page context and are handled inline.
type fieldRule struct {
	name     string
	selector string
	attr     string
	apply    func(*profile.Profile, []string)
}

var detailFields = []fieldRule{
	{
		name:     "activity_area",
		selector: ".pro-info-horizontal-list .info-list-text [itemprop=child] [itemprop=title]",
		apply: func(p *profile.Profile, c []string) {
			p.ActivityArea, _ = normalize.TakeFirst(c)
		},
	},
	{
		name:     "website",
		selector: ".pro-contact-methods .proWebsiteLink",
		attr:     "href",
		apply: func(p *profile.Profile, c []string) {
			p.Website, _ = normalize.TakeFirst(c)
		},
	},
	{
		name:     "company_name",
		selector: "a.profile-full-name",
		apply: func(p *profile.Profile, c []string) {
			if first, ok := normalize.TakeFirst(c); ok {
				p.CompanyName = strings.TrimSpace(first)
			}
		},
	},
	{
		name:     "pro_rating",
		selector: ".profile-title .pro-rating [itemprop=ratingValue]",
		attr:     "content",
		apply: func(p *profile.Profile, c []string) {
			p.ProRating = normalize.ToFloat(c)
		},
	},
	{
		name:     "reviews_count",
		selector: ".profile-title .pro-rating [itemprop=reviewCount]",
		apply: func(p *profile.Profile, c []string) {
			p.ReviewsCount = normalize.ToInt(c)
		},
	},
}

var addressFields = []struct {
	selector string
	apply    func(*profile.Address, []string)
}{
	{
		selector: ".pro-info-horizontal-list .info-list-text [itemprop=addressRegion]",
		apply: func(a *profile.Address, c []string) {
			a.Prefecture, _ = normalize.TakeFirst(c)
		},
	},
	{
		selector: ".pro-info-horizontal-list .info-list-text [itemprop=addressLocality] a",
		apply: func(a *profile.Address, c []string) {
			a.City, _ = normalize.TakeFirst(c)
		},
	},
	{
		selector: ".pro-info-horizontal-list .info-list-text [itemprop=streetAddress]",
		apply: func(a *profile.Address, c []string) {
			a.Street = normalize.Join(c)
		},
	},
}

// HTMLConfig controls the HTML-source pipeline.
type HTMLConfig struct {
	// ListURL is the first listing page.
	ListURL string
	// Quota caps how many item links the pipeline follows; it is the width
	// of the owning worker's partition.
	Quota int
}

// HTMLPipeline walks listing pages, follows item links to detail pages, and
// follows each detail page's projects link for the done count.
type HTMLPipeline struct {
	cfg      HTMLConfig
	fetcher  fetch.Fetcher
	resolver *geo.Resolver
	logger   *zap.Logger

	extracted int
	total     int
	errors    int
}

// NewHTMLPipeline builds an HTMLPipeline. The resolver is injected, one per
// worker, and shared by every record the pipeline builds.
func NewHTMLPipeline(cfg HTMLConfig, fetcher fetch.Fetcher, resolver *geo.Resolver, logger *zap.Logger) *HTMLPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLPipeline{cfg: cfg, fetcher: fetcher, resolver: resolver, logger: logger}
}

// Extracted reports how many item links were followed.
func (p *HTMLPipeline) Extracted() int { return p.extracted }

// Total reports the listing total declared by the first page, or 0.
func (p *HTMLPipeline) Total() int { return p.total }

// Errors reports page-level failures.
func (p *HTMLPipeline) Errors() int { return p.errors }

// Run pages through the listing until the quota is exhausted or no further
// pagination link exists. Item quota is checked before following a link, so
// the quota can never be exceeded mid-page.
func (p *HTMLPipeline) Run(ctx context.Context, emit EmitFunc) error {
	visited := map[string]bool{}
	pageURL := p.cfg.ListURL

	for pageURL != "" && p.extracted < p.cfg.Quota {
		if err := ctx.Err(); err != nil {
			return err
		}
		visited[pageURL] = true

		resp, err := p.fetcher.Fetch(ctx, fetch.Request{URL: pageURL})
		if err != nil {
			p.errors++
			return fmt.Errorf("list page %s: %w", pageURL, err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			p.errors++
			return fmt.Errorf("parse list page %s: %w", pageURL, err)
		}

		if p.total == 0 {
			p.total = listingTotal(doc)
		}

		done, err := p.followItems(ctx, resp.URL, doc, emit)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		pageURL = nextPage(resp.URL, doc, visited)
	}
	return nil
}

func (p *HTMLPipeline) followItems(ctx context.Context, pageURL string, doc *goquery.Document, emit EmitFunc) (bool, error) {
	var firstErr error
	quotaHit := false
	doc.Find("a.pro-title").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if p.extracted >= p.cfg.Quota {
			quotaHit = true
			return false
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		p.extracted++
		if err := p.processItem(ctx, resolveURL(pageURL, href), emit); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return quotaHit, firstErr
}

func (p *HTMLPipeline) processItem(ctx context.Context, itemURL string, emit EmitFunc) error {
	resp, err := p.fetcher.Fetch(ctx, fetch.Request{URL: itemURL})
	if err != nil {
		p.errors++
		p.logger.Warn("detail page fetch failed", zap.String("url", itemURL), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		p.errors++
		return nil
	}

	rec, projectsURL := p.buildRecord(ctx, resp.URL, doc)
	if projectsURL != "" {
		rec.ProjectsDoneCount = p.projectsDone(ctx, resolveURL(resp.URL, projectsURL))
	}

	if !rec.Complete() {
		p.logger.Debug("record without contact name discarded", zap.String("url", itemURL))
		return nil
	}
	if err := emit(rec); err != nil {
		return fmt.Errorf("emit %s: %w", itemURL, err)
	}
	return nil
}

// buildRecord assembles the partial record from the detail page. Field misses
// degrade to absent fields; only the profiles URL of the projects
// sub-resource is returned separately for the final round trip.
func (p *HTMLPipeline) buildRecord(ctx context.Context, pageURL string, doc *goquery.Document) (profile.Profile, string) {
	var rec profile.Profile
	rec.ProfileURL = pageURL

	infoItems := doc.Find(".pro-info-horizontal-list .info-list-text")

	postal, _ := normalize.TakeFirst(texts(infoItems.Find("[itemprop=postalCode]"), ""))
	geoRes := p.resolver.Resolve(ctx, postal)
	rec.Coordinates = geoRes.Coordinates

	rec.ContactName = contactName(infoItems)

	if rawPhone, ok := normalize.TakeFirst(texts(doc.Find(".pro-contact-methods .pro-contact-text"), "")); ok {
		rec.PhoneNumber = normalize.FormatPhone(rawPhone, geoRes.CountryCode)
	}

	for _, rule := range detailFields {
		rule.apply(&rec, texts(doc.Find(rule.selector), rule.attr))
	}
	for _, rule := range addressFields {
		rule.apply(&rec.Address, texts(doc.Find(rule.selector), ""))
	}
	rec.Address.Postal = postal

	// The cost entry is positional: the fifth info item, minus its two label
	// nodes. A shorter list means the professional lists no cost.
	if cost := infoItems.Eq(4); cost.Length() > 0 {
		parts := texts(cost.Contents(), "")
		if len(parts) > 2 {
			rec.ServiceCost = normalize.InlineJoin(parts[2:])
		}
	}

	projectsURL, _ := doc.Find("a.sidebar-item-label[compid=projects_tab]").Attr("href")
	return rec, projectsURL
}

// projectsDone fetches the projects sub-resource and parses the done count.
// An unreachable or unparsable page yields nil, which omits the field.
func (p *HTMLPipeline) projectsDone(ctx context.Context, projectsURL string) *int {
	resp, err := p.fetcher.Fetch(ctx, fetch.Request{URL: projectsURL})
	if err != nil {
		p.logger.Debug("projects page unavailable", zap.String("url", projectsURL), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil
	}
	header := strings.TrimSpace(doc.Find("#projectsBody .header-1").Text())
	return normalize.ToInt(digitsRE.FindAllString(header, -1))
}

// contactName takes the second info item, drops its bold label, and keeps the
// first word-character run.
func contactName(infoItems *goquery.Selection) string {
	item := infoItems.Eq(1)
	if item.Length() == 0 {
		return ""
	}
	var candidates []string
	item.Contents().Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "b" {
			return
		}
		for _, m := range nameRE.FindAllString(sel.Text(), -1) {
			candidates = append(candidates, m)
		}
	})
	name, _ := normalize.TakeFirst(candidates)
	return name
}

// listingTotal joins every digit group in the main title, so separators in
// formatted counts ("12,345") are ignored.
func listingTotal(doc *goquery.Document) int {
	joined := strings.Join(digitsRE.FindAllString(doc.Find(".main-title").Text(), -1), "")
	if n := normalize.ToInt([]string{joined}); n != nil {
		return *n
	}
	return 0
}

// nextPage returns the unvisited pagination link pointing forward, or "".
// Workers may start mid-listing, where the navigation also offers a backward
// control into pages owned by sibling partitions; only links with a higher
// page offset than the current page are candidates.
func nextPage(pageURL string, doc *goquery.Document, visited map[string]bool) string {
	current := pageOffset(pageURL)
	next := ""
	best := 0
	doc.Find("a.navigation-button").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveURL(pageURL, href)
		if visited[abs] {
			return
		}
		n := pageOffset(abs)
		if n <= current {
			return
		}
		if best == 0 || n < best {
			best = n
			next = abs
		}
	})
	return next
}

// pageOffset reads the trailing number of a listing URL as its page; a bare
// listing URL is page 1.
func pageOffset(u string) int {
	nums := digitsRE.FindAllString(u, -1)
	if len(nums) == 0 {
		return 1
	}
	n, err := strconv.Atoi(nums[len(nums)-1])
	if err != nil {
		return 1
	}
	return n
}

func texts(sel *goquery.Selection, attr string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if attr != "" {
			if v, ok := s.Attr(attr); ok {
				out = append(out, v)
			}
			return
		}
		out = append(out, s.Text())
	})
	return out
}

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
