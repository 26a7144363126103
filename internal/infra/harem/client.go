// Package harem fetches live gold and currency quotes from the Harem Altın
// market feed (canlipiyasalar.haremaltin.com).
package harem

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
)

// priceValue accepts both string and numeric JSON price fields; the feed is
// not consistent about which it sends. null and absent both decode to "".
type priceValue string

func (p *priceValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = priceValue(s)
		return nil
	}
	if string(b) == "null" {
		*p = ""
		return nil
	}
	*p = priceValue(b)
	return nil
}

type rawQuote struct {
	Code  string     `json:"code"`
	Alis  priceValue `json:"alis"`
	Satis priceValue `json:"satis"`
}

type apiResponse struct {
	Data map[string]rawQuote `json:"data"`
}

// Client is the upstream quote API client
type Client struct {
	baseURL    string
	locale     string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a quote client for the given endpoint
func NewClient(baseURL, locale string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		locale:    locale,
		userAgent: infra.DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs exactly one GET against the quote endpoint. There is no
// in-call retry: the poll loop's next tick is the retry. Every failure is
// wrapped in a domain.FetchError.
func (c *Client) Fetch(ctx context.Context) (map[string]domain.Quote, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, domain.NewFetchError(c.baseURL, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(reqURL, 0, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(reqURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFetchError(reqURL, resp.StatusCode, domain.ErrUpstreamStatus)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewFetchError(reqURL, resp.StatusCode, err)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewFetchError(reqURL, resp.StatusCode, domain.ErrMalformedPayload)
	}
	if len(payload.Data) == 0 {
		return nil, domain.NewFetchError(reqURL, resp.StatusCode, domain.ErrNoData)
	}

	quotes := make(map[string]domain.Quote, len(payload.Data))
	for code, raw := range payload.Data {
		if raw.Code == "" {
			raw.Code = code
		}
		quotes[code] = domain.Quote{
			Code:  raw.Code,
			Alis:  string(raw.Alis),
			Satis: string(raw.Satis),
		}
	}
	return quotes, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("dil_kodu", c.locale)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
