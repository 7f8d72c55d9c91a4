package extract

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodexio/prodex/internal/fetch"
	"github.com/prodexio/prodex/internal/geo"
	"github.com/prodexio/prodex/internal/profile"
)

// handlerFetcher routes fetches through a function, which lets API tests
// answer by query parameter instead of exact URL.
type handlerFetcher struct {
	handle func(req fetch.Request) (fetch.Response, error)
	reqs   []fetch.Request
}

func (f *handlerFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.handle(req)
}

func apiPage(ack string, total string, items string) string {
	return `{"Ack":"` + ack + `","TotalProfessionalCount":` + total + `,"Professionals":[` + items + `]}`
}

const apiItemFull = `{"UserName":"Sato Yui","Professional":{
	"ServicesProvided":"Interior Design",
	"WebSite":"http://sato.example",
	"Email":"yui@sato.example",
	"Zip":"150-0001",
	"State":"Tokyo",
	"Address":"4-5-6 Jingumae",
	"City":"Shibuya",
	"Location":"Shibuya, Tokyo",
	"Phone":"03-9876-5432",
	"UserDisplayName":" Sato Interiors ",
	"CostEstimateDescription":"initial visit\tfree\nhourly after",
	"ReviewRating":4.8,
	"ReviewCount":31
}}`

const apiItemSparse = `{"UserName":"Mori Ken","Professional":{"Phone":"no calls please"}}`

const apiItemNameless = `{"UserName":"","Professional":{"City":"Osaka"}}`

func startParam(req fetch.Request) string {
	u, _ := url.Parse(req.URL)
	return u.Query().Get("start")
}

func TestAPIPipeline_PagesThroughPartition(t *testing.T) {
	t.Parallel()

	geoSrv := geoServer(t, `[{"lat":"35.66","lon":"139.70","address":{"country_code":"jp"}}]`)
	resolver := geo.NewResolver(geo.Config{Endpoint: geoSrv.URL, Bias: "JP"}, nil)

	fetcher := &handlerFetcher{handle: func(req fetch.Request) (fetch.Response, error) {
		switch startParam(req) {
		case "0":
			return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "5042", apiItemFull+","+apiItemNameless))}, nil
		case "2":
			return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "5042", apiItemSparse))}, nil
		default:
			t.Fatalf("unexpected page request: %s", req.URL)
			return fetch.Response{}, nil
		}
	}}

	p := NewAPIPipeline(APIConfig{
		BaseURL:  "https://api.site.test/api",
		Version:  174,
		PageSize: 2,
		Start:    0,
		Max:      4,
		SiteID:   "106",
		Locale:   "en_EN",
	}, fetcher, resolver, nil)

	var emitted []profile.Profile
	err := p.Run(context.Background(), func(rec profile.Profile) error {
		emitted = append(emitted, rec)
		return nil
	})
	require.NoError(t, err)

	// The nameless record is never emitted.
	require.Len(t, emitted, 2)
	assert.Equal(t, 2, p.Extracted())
	assert.Equal(t, 5042, p.Total())
	assert.Zero(t, p.Errors())

	rec := emitted[0]
	assert.Equal(t, "Sato Yui", rec.ContactName)
	assert.Equal(t, "Interior Design", rec.ActivityArea)
	assert.Equal(t, "yui@sato.example", rec.Email)
	assert.Equal(t, "Sato Interiors", rec.CompanyName)
	assert.Equal(t, "initial visit free. hourly after", rec.ServiceCost)
	assert.Equal(t, "+81398765432", rec.PhoneNumber)
	assert.Equal(t, "Shibuya", rec.Address.City)
	assert.Equal(t, "150-0001", rec.Address.Postal)
	require.NotNil(t, rec.Coordinates)
	require.NotNil(t, rec.ProRating)
	assert.InDelta(t, 4.8, *rec.ProRating, 1e-9)
	require.NotNil(t, rec.ReviewsCount)
	assert.Equal(t, 31, *rec.ReviewsCount)

	// Unparsable phone stays raw; numeric fields are simply absent.
	sparse := emitted[1]
	assert.Equal(t, "Mori Ken", sparse.ContactName)
	assert.Equal(t, "no calls please", sparse.PhoneNumber)
	assert.Nil(t, sparse.ProRating)
	assert.Nil(t, sparse.ReviewsCount)
}

func TestAPIPipeline_SendsClientHeaders(t *testing.T) {
	t.Parallel()

	geoSrv := geoServer(t, `[]`)
	resolver := geo.NewResolver(geo.Config{Endpoint: geoSrv.URL, Bias: "JP"}, nil)

	fetcher := &handlerFetcher{handle: func(fetch.Request) (fetch.Response, error) {
		return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "1", ""))}, nil
	}}

	p := NewAPIPipeline(APIConfig{
		BaseURL:   "https://api.site.test/api",
		Version:   174,
		PageSize:  10,
		Start:     0,
		Max:       10,
		SiteID:    "106",
		Locale:    "en_EN",
		AppAgent:  "Lenovo S660~4.4.2",
		AppName:   "android1",
		UserAgent: "Dalvik/1.6.0",
	}, fetcher, resolver, nil)

	require.NoError(t, p.Run(context.Background(), func(profile.Profile) error { return nil }))

	require.Len(t, fetcher.reqs, 1)
	h := fetcher.reqs[0].Headers
	assert.Equal(t, "106", h.Get("X-API-SITE-ID"))
	assert.Equal(t, "en_EN", h.Get("X-API-LOCALE"))
	assert.Equal(t, "Lenovo S660~4.4.2", h.Get("X-API-APP-AGENT"))
	assert.Equal(t, "android1", h.Get("X-API-APP-NAME"))
	assert.Equal(t, "Dalvik/1.6.0", h.Get("User-Agent"))

	u, err := url.Parse(fetcher.reqs[0].URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "getProfessionals", q.Get("method"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "sec", q.Get("dateFormat"))
	assert.Equal(t, "yes", q.Get("includeSponsored"))
	assert.Equal(t, "174", q.Get("version"))
	assert.Equal(t, "10", q.Get("numberOfItems"))
}

func TestAPIPipeline_RejectedPageDropsAllItems(t *testing.T) {
	t.Parallel()

	geoSrv := geoServer(t, `[]`)
	resolver := geo.NewResolver(geo.Config{Endpoint: geoSrv.URL, Bias: "JP"}, nil)

	fetcher := &handlerFetcher{handle: func(req fetch.Request) (fetch.Response, error) {
		if startParam(req) == "0" {
			return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Failure", "0", apiItemFull))}, nil
		}
		return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "5042", apiItemSparse))}, nil
	}}

	p := NewAPIPipeline(APIConfig{
		BaseURL:  "https://api.site.test/api",
		PageSize: 2,
		Start:    0,
		Max:      4,
	}, fetcher, resolver, nil)

	var emitted []profile.Profile
	err := p.Run(context.Background(), func(rec profile.Profile) error {
		emitted = append(emitted, rec)
		return nil
	})
	require.NoError(t, err)

	// No partial items from the rejected page; later pages still processed.
	require.Len(t, emitted, 1)
	assert.Equal(t, "Mori Ken", emitted[0].ContactName)
	assert.Equal(t, 1, p.Errors())
	assert.Equal(t, 5042, p.Total())
}

func TestAPIPipeline_TotalRecordedOnce(t *testing.T) {
	t.Parallel()

	geoSrv := geoServer(t, `[]`)
	resolver := geo.NewResolver(geo.Config{Endpoint: geoSrv.URL, Bias: "JP"}, nil)

	fetcher := &handlerFetcher{handle: func(req fetch.Request) (fetch.Response, error) {
		if startParam(req) == "0" {
			return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "100", ""))}, nil
		}
		return fetch.Response{StatusCode: http.StatusOK, Body: []byte(apiPage("Success", "999", ""))}, nil
	}}

	p := NewAPIPipeline(APIConfig{
		BaseURL:  "https://api.site.test/api",
		PageSize: 1,
		Start:    0,
		Max:      3,
	}, fetcher, resolver, nil)

	require.NoError(t, p.Run(context.Background(), func(profile.Profile) error { return nil }))
	assert.Equal(t, 100, p.Total())
}
