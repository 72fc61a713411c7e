// Package vhttpget fetches small documents over HTTP.
package vhttpget

import (
	"fmt"
	"io/ioutil"
	"net/http"
)

const userAgent = "buildmatrix"

type Getter interface {
	DoRequest(url string) (string, error)
}

type client struct {
	http *http.Client
}

// New returns a Getter that fails on any response outside the 2xx range.
func New() Getter {
	return &client{http: http.DefaultClient}
}

func (c *client) DoRequest(url string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("GET %s: %s: %s", url, res.Status, snippet)
	}

	return string(body), nil
}

type tester map[string]string

// NewTester returns a Getter answering only the URLs in responses.
func NewTester(responses map[string]string) Getter {
	return tester(responses)
}

func (t tester) DoRequest(url string) (string, error) {
	res, ok := t[url]
	if !ok {
		return "", fmt.Errorf("unexpected url: %s", url)
	}
	return res, nil
}
