// Package registry lists the tags already published for an image.
//
// Two APIs are supported. The quay API (/api/v1/repository/<owner>/<image>/tag/)
// is what the image pipeline publishes to and is the default. The v2 API is the
// OCI distribution tags/list endpoint, for registries that only speak that.
// The v2 client resolves relative pagination Link headers against the request URL
// and answers bearer-token challenges, see transport.go.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"
	"k8s.io/klog/klogr"
)

const (
	APIQuay = "quay"
	APIV2   = "v2"

	DefaultHost = "quay.io"

	// tagLimit is the page size requested from the quay API. Only the first page is read.
	tagLimit = 100
)

var (
	// ErrNoMorePages is returned when there are no more pages to fetch.
	ErrNoMorePages = errors.New("no more pages")
)

// Client queries a registry for the tags of images under a single owner.
type Client struct {
	api      string
	baseURL  *url.URL
	owner    string
	username string
	password string
	token    string
	client   *http.Client

	Logger logr.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for the registry client.
// This is useful for testing or when custom transport settings are needed.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPI selects APIQuay or APIV2.
func WithAPI(api string) Option {
	return func(c *Client) {
		c.api = api
	}
}

// WithCredentials sets the username and password used to obtain v2 bearer tokens.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithToken sets an OAuth2 access token sent with every quay API request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithLogger(l logr.Logger) Option {
	return func(c *Client) {
		c.Logger = l
	}
}

// New creates a registry client for images owned by owner.
// baseURL may omit the scheme, in which case https is assumed.
func New(baseURL, owner string, opts ...Option) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		api:     APIQuay,
		baseURL: u,
		owner:   owner,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.Logger == nil {
		c.Logger = klogr.New()
	}

	transport := http.DefaultTransport
	if c.client != nil && c.client.Transport != nil {
		transport = c.client.Transport
	}

	switch c.api {
	case APIQuay:
		if c.token != "" {
			transport = &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token}),
				Base:   transport,
			}
		}
	case APIV2:
		transport = WrapTransport(transport, c.username, c.password)
	default:
		return nil, fmt.Errorf("unsupported registry api %q: must be either %q or %q", c.api, APIQuay, APIV2)
	}

	c.client = &http.Client{Transport: transport}

	return c, nil
}

// Tags returns the tag names of the image, in the order the registry listed them.
func (c *Client) Tags(image string) ([]string, error) {
	if c.api == APIV2 {
		return c.v2Tags(image)
	}
	return c.quayTags(image)
}

type quayTagsResponse struct {
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func (c *Client) quayTags(image string) ([]string, error) {
	u := c.url("/api/v1/repository/%s/%s/tag/", c.owner, image)
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", tagLimit))
	u = u + "?" + q.Encode()

	c.Logger.V(1).Info("registry.tags", "api", c.api, "url", u)

	var response quayTagsResponse
	if _, err := c.getJSON(u, &response); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(response.Tags))
	for _, t := range response.Tags {
		tags = append(tags, t.Name)
	}
	return tags, nil
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

func (c *Client) v2Tags(image string) ([]string, error) {
	repository := image
	if c.owner != "" {
		repository = c.owner + "/" + image
	}
	u := c.url("/v2/%s/tags/list", repository)

	var tags []string
	for {
		c.Logger.V(1).Info("registry.tags", "api", c.api, "url", u)

		var response tagsResponse
		resp, err := c.getJSON(u, &response)
		if err != nil {
			return nil, err
		}
		tags = append(tags, response.Tags...)

		nextURL, err := c.getNextLink(resp, u)
		switch err {
		case ErrNoMorePages:
			return tags, nil
		case nil:
			u = nextURL
		default:
			return nil, err
		}
	}
}

// url constructs a full URL from the base URL and the given path format.
func (c *Client) url(pathFormat string, args ...interface{}) string {
	path := fmt.Sprintf(pathFormat, args...)
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// getJSON fetches a URL and decodes the JSON response into the given
// interface. The body of the returned response is already closed.
func (c *Client) getJSON(urlStr string, response interface{}) (*http.Response, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status code: %d", urlStr, resp.StatusCode)
	}

	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(response); err != nil {
		return nil, fmt.Errorf("GET %s: decoding response: %w", urlStr, err)
	}

	return resp, nil
}

// nextLinkRE matches an RFC 5988 (https://tools.ietf.org/html/rfc5988#section-5)
// Link header. For example,
//
//	<http://registry.example.com/v2/_catalog?n=5&last=tag5>; type="application/json"; rel="next"
//
// The URL is _supposed_ to be wrapped by angle brackets `< ... >`,
// but e.g., quay.io does not include them. Similarly, params like
// `rel="next"` may not have quoted values in the wild.
var nextLinkRE = regexp.MustCompile(`^ *<?([^;>]+)>? *(?:;[^;]*)*; *rel="?next"?(?:;.*)?`)

// getNextLink extracts the next page URL from the Link header, resolving
// relative URLs against the current request URL.
func (c *Client) getNextLink(resp *http.Response, currentURL string) (string, error) {
	for _, link := range resp.Header[http.CanonicalHeaderKey("Link")] {
		parts := nextLinkRE.FindStringSubmatch(link)
		if parts == nil {
			continue
		}

		next, err := url.Parse(parts[1])
		if err != nil {
			return "", fmt.Errorf("invalid next link URL: %w", err)
		}
		if next.IsAbs() {
			return next.String(), nil
		}

		current, err := url.Parse(currentURL)
		if err != nil {
			return "", fmt.Errorf("invalid current URL: %w", err)
		}
		return current.ResolveReference(next).String(), nil
	}
	return "", ErrNoMorePages
}
