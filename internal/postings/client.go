package postings

import (
	"compress/gzip"
	"context"
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

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/retry"
	"github.com/spigell/career-assistant/internal/utils"
)

const (
	defaultTokenURL = "https://entreprise.francetravail.fr/connexion/oauth2/access_token?realm=%2Fpartenaire"
	defaultAPIURL   = "https://api.francetravail.io/partenaire/offresdemploi/v2/offres/search"
	defaultScope    = "api_offresdemploiv2 o2dsoffre"
	detailURL       = "https://candidat.francetravail.fr/offres/recherche/detail/"
	userAgent       = "spigell/career-assistant"
	contentEncoding = "gzip"

	DefaultLimit  = 5
	DefaultRadius = 70
	// Max value for range per request.
	pageSize = 150
	// The API refuses ranges past this index.
	maxIndex = 3149

	tokenExpiryMargin = 30 * time.Second
	maxErrorBody      = 512
)

var contentRangeRe = regexp.MustCompile(`(\d+)-(\d+)/(\d+)`)

// Config holds the France Travail credentials and endpoints.
type Config struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	TokenURL     string        `mapstructure:"token_url"`
	APIURL       string        `mapstructure:"api_url"`
	Scope        string        `mapstructure:"scope"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	TokenURL   string

	clientID     string
	clientSecret string
	scope        string
	policy       retry.Policy
	logger       *zap.Logger
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func New(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent:    userAgent,
		APIURL:       cfg.APIURL,
		TokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		policy:       policy,
		logger:       logger,
		now:          time.Now,
	}
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.scope == "" {
		c.scope = defaultScope
	}

	return c
}

// Search returns up to Filters.Limit postings matching q, fetching as many pages as needed.
func (c *Client) Search(ctx context.Context, q Query) ([]*Posting, error) {
	limit := q.Filters.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := buildParams(q)

	var postings []*Posting
	for start := 0; start < limit && start <= maxIndex; start += pageSize {
		end := min(start+pageSize, limit) - 1
		end = min(end, maxIndex)

		params.Set("range", fmt.Sprintf("%d-%d", start, end))
		page, err := retry.Do(ctx, c.policy, 0, classify, func(ctx context.Context) (*searchPage, error) {
			return c.fetchPage(ctx, params)
		})
		if err != nil {
			return nil, err
		}

		postings = append(postings, page.postings...)
		c.logger.Debug("got response from France Travail",
			zap.Int("page items", len(page.postings)),
			zap.Int("total", page.total),
		)

		if len(page.postings) < end-start+1 || (page.total > 0 && end+1 >= page.total) {
			break
		}

		c.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"got %d postings of %d requested", len(postings), limit),
		))
	}

	if len(postings) > limit {
		postings = postings[:limit]
	}

	return postings, nil
}

func buildParams(q Query) url.Values {
	params := url.Values{}
	if keywords := strings.TrimSpace(q.Keywords); keywords != "" {
		params.Set("motsCles", keywords)
	}

	switch {
	case q.Filters.Commune != "":
		params.Set("commune", q.Filters.Commune)
		radius := q.Filters.Radius
		if radius <= 0 {
			radius = DefaultRadius
		}
		params.Set("distance", strconv.Itoa(radius))
	case q.Filters.Department != "":
		params.Set("departement", q.Filters.Department)
	default:
		if dept := Department(q.Location); dept != "" {
			params.Set("departement", dept)
		}
	}

	if contract := ContractCode(q.Filters.Contract); contract != "" {
		params.Set("typeContrat", contract)
	}

	return params
}

type searchPage struct {
	postings []*Posting
	total    int
}

func (c *Client) fetchPage(ctx context.Context, params url.Values) (*searchPage, error) {
	resp, err := c.authorizedGet(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return &searchPage{}, nil
	case http.StatusOK, http.StatusPartialContent:
	default:
		body, _ := readBody(resp, maxErrorBody)
		return nil, statusError(resp, string(body))
	}

	data, err := readBody(resp, 0)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	postings, err := decodeOffers(data)
	if err != nil {
		return nil, apiError(KindMalformed, resp.StatusCode, err)
	}

	return &searchPage{
		postings: postings,
		total:    parseTotal(resp.Header.Get("Content-Range")),
	}, nil
}

// authorizedGet makes the search request, refreshing the token once on 401.
func (c *Client) authorizedGet(ctx context.Context, params url.Values) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL, nil)
		if err != nil {
			return nil, apiError(KindMalformed, 0, err)
		}
		req.URL.RawQuery = params.Encode()
		req = c.setHeaders(req)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.request(req)
		if err != nil {
			return nil, c.transportError(ctx, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Debug("access token rejected, refreshing")
			drain(resp)
			c.invalidate(token)
			continue
		}

		return resp, nil
	}
}

func (c *Client) accessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	if c.clientID == "" || c.clientSecret == "" {
		return "", apiError(KindAuthFailed, 0, errors.New("client id and secret are required"))
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apiError(KindAuthFailed, 0, err)
	}
	req = c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.request(req)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp, 0)
	if err != nil {
		return "", c.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := statusError(resp, utils.TruncateForLog(string(body), maxErrorBody))
		if resp.StatusCode == http.StatusBadRequest {
			// invalid_client comes back as 400.
			apiErr.Kind = KindAuthFailed
		}
		return "", apiErr
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
		if err == nil {
			err = errors.New("empty access token")
		}
		return "", apiError(KindAuthFailed, resp.StatusCode, fmt.Errorf("decode token: %w", err))
	}

	lifetime := time.Duration(token.ExpiresIn) * time.Second
	if lifetime > tokenExpiryMargin {
		lifetime -= tokenExpiryMargin
	}
	c.token = token.AccessToken
	c.expiresAt = c.now().Add(lifetime)

	return c.token, nil
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.Redacted()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// transportError keeps caller cancellation as is and turns everything else into Unavailable.
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return apiError(KindUnavailable, 0, err)
}

func classify(err error) (retry.Class, time.Duration) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		return retry.RateLimited, apiErr.RetryAfter
	}
	return retry.Fatal, 0
}

// readBody reads the response, decompressing gzip. A positive limit caps the bytes read.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}
	if limit > 0 {
		reader = io.LimitReader(reader, limit)
	}

	return io.ReadAll(reader)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// parseTotal reads N from "offres 0-149/N".
func parseTotal(contentRange string) int {
	m := contentRangeRe.FindStringSubmatch(contentRange)
	if m == nil {
		return 0
	}
	total, err := strconv.Atoi(m[3])
	if err != nil {
		return 0
	}
	return total
}
