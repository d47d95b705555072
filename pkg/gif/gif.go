/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package gif finds GIFs for the gif command through the Tenor API.
package gif

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultEndpoint = "https://g.tenor.com/v1"

// Client queries Tenor. The zero value is not usable; use NewClient.
type Client struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewClient builds a Tenor client for the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
	}
}

type searchResponse struct {
	Results []struct {
		Media []map[string]struct {
			URL  string `json:"url"`
			Dims []int  `json:"dims"`
		} `json:"media"`
	} `json:"results"`
}

// Search returns the URL of the first GIF matching the query, or "" when
// nothing matched.
func (c *Client) Search(query string) (string, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", query)
	q.Set("limit", "1")
	q.Set("contentfilter", "high")

	resp, err := c.client.Get(fmt.Sprintf("%s/search?%s", c.endpoint, q.Encode()))
	if err != nil {
		return "", fmt.Errorf("searching gif for %q: %w", query, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("searching gif for %q: status %s", query, resp.Status)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding gif response: %w", err)
	}
	for _, result := range sr.Results {
		for _, media := range result.Media {
			if m, ok := media["tinygif"]; ok && m.URL != "" {
				return m.URL, nil
			}
			for _, m := range media {
				if m.URL != "" {
					return m.URL, nil
				}
			}
		}
	}
	return "", nil
}
