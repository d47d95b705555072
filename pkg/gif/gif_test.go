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

package gif

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "ship it" {
			t.Errorf("wrong query: %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("wrong api key: %q", got)
		}
		fmt.Fprint(w, `{"results":[{"media":[{"tinygif":{"url":"https://media.tenor.com/x.gif","dims":[220,124]}}]}]}`)
	}))
	defer ts.Close()

	c := NewClient("secret")
	c.endpoint = ts.URL
	url, err := c.Search("ship it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://media.tenor.com/x.gif" {
		t.Errorf("wrong url: %q", url)
	}
}

func TestSearchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer ts.Close()

	c := NewClient("secret")
	c.endpoint = ts.URL
	url, err := c.Search("nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "" {
		t.Errorf("expected no url, got %q", url)
	}
}
