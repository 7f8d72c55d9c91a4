package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/fetch"
	"github.com/prodexio/prodex/internal/geo"
	"github.com/prodexio/prodex/internal/normalize"
	"github.com/prodexio/prodex/internal/profile"
)

// APIConfig controls the API-source pipeline. The header fields form the
// fixed client-identification set sent on every request.
type APIConfig struct {
	BaseURL  string
	Version  int
	PageSize int
	// Start and Max bound the item cursor: pages are requested while the
	// cursor is below Max, advancing by PageSize per page.
	Start int
	Max   int

	SiteID    string
	Locale    string
	AppAgent  string
	AppName   string
	UserAgent string
}

// APIPipeline extracts records from the mirrored JSON API. Every page
// response is self-contained, so there is no detail round trip.
type APIPipeline struct {
	cfg      APIConfig
	fetcher  fetch.Fetcher
	resolver *geo.Resolver
	logger   *zap.Logger

	extracted int
	total     int
	errors    int
}

// NewAPIPipeline builds an APIPipeline.
func NewAPIPipeline(cfg APIConfig, fetcher fetch.Fetcher, resolver *geo.Resolver, logger *zap.Logger) *APIPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIPipeline{cfg: cfg, fetcher: fetcher, resolver: resolver, logger: logger}
}

// Extracted reports how many items were emitted from accepted pages.
func (p *APIPipeline) Extracted() int { return p.extracted }

// Total reports the professional count declared by the first accepted page.
func (p *APIPipeline) Total() int { return p.total }

// Errors reports pages rejected by the upstream acknowledgement.
func (p *APIPipeline) Errors() int { return p.errors }

type apiEnvelope struct {
	Ack                    string       `json:"Ack"`
	TotalProfessionalCount json.Number  `json:"TotalProfessionalCount"`
	Professionals          []apiListing `json:"Professionals"`
}

type apiListing struct {
	UserName     string          `json:"UserName"`
	Professional apiProfessional `json:"Professional"`
}

type apiProfessional struct {
	ServicesProvided        string      `json:"ServicesProvided"`
	WebSite                 string      `json:"WebSite"`
	Email                   string      `json:"Email"`
	Zip                     string      `json:"Zip"`
	State                   string      `json:"State"`
	Address                 string      `json:"Address"`
	City                    string      `json:"City"`
	Location                string      `json:"Location"`
	Phone                   string      `json:"Phone"`
	UserDisplayName         string      `json:"UserDisplayName"`
	CostEstimateDescription string      `json:"CostEstimateDescription"`
	ReviewRating            json.Number `json:"ReviewRating"`
	ReviewCount             json.Number `json:"ReviewCount"`
}

// Run requests pages until the item cursor reaches the partition's upper
// bound. A page whose acknowledgement is not Success is dropped whole (no
// partial items) and counted as an error; later pages are still processed.
func (p *APIPipeline) Run(ctx context.Context, emit EmitFunc) error {
	for cursor := p.cfg.Start; cursor < p.cfg.Max; cursor += p.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processPage(ctx, cursor, emit); err != nil {
			return err
		}
	}
	return nil
}

func (p *APIPipeline) processPage(ctx context.Context, cursor int, emit EmitFunc) error {
	resp, err := p.fetcher.Fetch(ctx, fetch.Request{
		URL:     p.pageURL(cursor),
		Headers: p.headers(),
	})
	if err != nil {
		p.errors++
		p.logger.Warn("api page fetch failed", zap.Int("start", cursor), zap.Error(err))
		return nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		p.errors++
		p.logger.Warn("api page unparsable", zap.Int("start", cursor), zap.Error(err))
		return nil
	}
	if env.Ack != "Success" {
		p.errors++
		p.logger.Warn("api page rejected upstream", zap.Int("start", cursor), zap.String("ack", env.Ack))
		return nil
	}

	if p.total == 0 {
		if n, err := env.TotalProfessionalCount.Int64(); err == nil {
			p.total = int(n)
		}
	}

	for _, listing := range env.Professionals {
		rec := p.buildRecord(ctx, listing)
		if !rec.Complete() {
			continue
		}
		p.extracted++
		if err := emit(rec); err != nil {
			return fmt.Errorf("emit item at cursor %d: %w", cursor, err)
		}
	}
	return nil
}

func (p *APIPipeline) buildRecord(ctx context.Context, listing apiListing) profile.Profile {
	info := listing.Professional
	rec := profile.Profile{
		ContactName:  strings.TrimSpace(listing.UserName),
		ActivityArea: info.ServicesProvided,
		Website:      info.WebSite,
		Email:        info.Email,
		CompanyName:  strings.TrimSpace(info.UserDisplayName),
		ServiceCost:  normalize.Inline(info.CostEstimateDescription),
		Address: profile.Address{
			Prefecture: info.State,
			City:       info.City,
			Street:     info.Address,
			Postal:     info.Zip,
		},
	}

	geoRes := p.resolver.Resolve(ctx, info.Location)
	rec.Coordinates = geoRes.Coordinates
	if geoRes.CountryCode != "" {
		rec.PhoneNumber = normalize.FormatPhone(info.Phone, geoRes.CountryCode)
	} else {
		rec.PhoneNumber = info.Phone
	}

	rec.ProRating = normalize.ToFloat([]string{info.ReviewRating.String()})
	rec.ReviewsCount = normalize.ToInt([]string{info.ReviewCount.String()})
	return rec
}

func (p *APIPipeline) pageURL(cursor int) string {
	params := url.Values{
		"version":          {strconv.Itoa(p.cfg.Version)},
		"method":           {"getProfessionals"},
		"format":           {"json"},
		"dateFormat":       {"sec"},
		"start":            {strconv.Itoa(cursor)},
		"numberOfItems":    {strconv.Itoa(p.cfg.PageSize)},
		"includeSponsored": {"yes"},
	}
	return p.cfg.BaseURL + "?" + params.Encode()
}

func (p *APIPipeline) headers() http.Header {
	h := http.Header{}
	h.Set("X-API-SITE-ID", p.cfg.SiteID)
	h.Set("X-API-LOCALE", p.cfg.Locale)
	h.Set("X-API-APP-AGENT", p.cfg.AppAgent)
	h.Set("X-API-APP-NAME", p.cfg.AppName)
	if p.cfg.UserAgent != "" {
		h.Set("User-Agent", p.cfg.UserAgent)
	}
	return h
}
