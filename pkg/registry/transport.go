package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// TokenTransport is an http.RoundTripper that handles registry token authentication.
// When a request receives a 401 with a bearer WWW-Authenticate challenge, it fetches a token
// from the realm named in the challenge and retries the request once with that token.
type TokenTransport struct {
	Transport http.RoundTripper
	Username  string
	Password  string
}

// WrapTransport wraps an http.RoundTripper with token authentication support.
func WrapTransport(transport http.RoundTripper, username, password string) http.RoundTripper {
	return &TokenTransport{
		Transport: transport,
		Username:  username,
		Password:  password,
	}
}

func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	challenge := parseBearerChallenge(resp.Header)
	if challenge == nil {
		return resp, nil
	}
	resp.Body.Close()

	token, err := t.fetchToken(challenge)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+token)
	return t.Transport.RoundTrip(retry)
}

type bearerChallenge struct {
	Realm   string
	Service string
	Scope   string
}

type authToken struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (t *TokenTransport) fetchToken(c *bearerChallenge) (string, error) {
	u, err := url.Parse(c.Realm)
	if err != nil {
		return "", fmt.Errorf("invalid token realm %q: %w", c.Realm, err)
	}

	q := u.Query()
	if c.Service != "" {
		q.Set("service", c.Service)
	}
	if c.Scope != "" {
		q.Set("scope", c.Scope)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	if t.Username != "" || t.Password != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth failed with status: %d", resp.StatusCode)
	}

	var token authToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}

	// Some token servers only fill in the OAuth2 field name.
	if token.Token == "" {
		return token.AccessToken, nil
	}
	return token.Token, nil
}

var challengeParamRE = regexp.MustCompile(`([A-Za-z0-9_-]+)\s*=\s*(?:"((?:[^"\\]|\\.)*)"|([^\s,]*))`)

// parseBearerChallenge returns the first bearer challenge found in the WWW-Authenticate headers.
func parseBearerChallenge(h http.Header) *bearerChallenge {
	for _, v := range h[http.CanonicalHeaderKey("WWW-Authenticate")] {
		v = strings.TrimSpace(v)
		sp := strings.IndexAny(v, " \t")
		if sp < 0 || !strings.EqualFold(v[:sp], "bearer") {
			continue
		}

		params := map[string]string{}
		for _, m := range challengeParamRE.FindAllStringSubmatch(v[sp+1:], -1) {
			val := m[3]
			if m[2] != "" {
				val = strings.Replace(m[2], `\"`, `"`, -1)
			}
			params[strings.ToLower(m[1])] = val
		}

		return &bearerChallenge{
			Realm:   params["realm"],
			Service: params["service"],
			Scope:   params["scope"],
		}
	}
	return nil
}
