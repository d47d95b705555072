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

package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus the client logs method calls through.
type Logger interface {
	Debugf(s string, v ...interface{})
}

// Client talks to the forge REST API. All mutating calls are swallowed in
// dry-run mode.
type Client struct {
	logger Logger
	client *http.Client
	token  func() []byte
	base   string
	dry    bool
}

const (
	maxRetries   = 5
	maxSleepTime = 10 * time.Second
	initialDelay = 500 * time.Millisecond
)

// DefaultAPIBase is the public forge endpoint.
const DefaultAPIBase = "https://api.github.com"

// NewClient creates a fully operational client. The token generator is
// called per request so rotated credentials are picked up.
func NewClient(token func() []byte, base string) *Client {
	return &Client{
		logger: logrus.WithField("client", "github"),
		client: &http.Client{Timeout: 30 * time.Second},
		token:  token,
		base:   strings.TrimSuffix(base, "/"),
	}
}

// NewDryRunClient creates a client that performs reads but swallows every
// mutation.
func NewDryRunClient(token func() []byte, base string) *Client {
	c := NewClient(token, base)
	c.dry = true
	return c
}

func (c *Client) log(methodName string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	var as []string
	for _, arg := range args {
		as = append(as, fmt.Sprintf("%v", arg))
	}
	c.logger.Debugf("%s(%s)", methodName, strings.Join(as, ", "))
}

var timeSleep = time.Sleep

type request struct {
	method      string
	path        string
	accept      string
	requestBody interface{}
	exitCodes   []int
}

type requestError struct {
	ClientError
	StatusCode  int
	ErrorString string
}

func (r requestError) Error() string {
	return r.ErrorString
}

// IsNotFound reports whether err is a terminal 404 from the forge.
func IsNotFound(err error) bool {
	re, ok := err.(requestError)
	return ok && re.StatusCode == 404
}

// NewNotFound returns an error IsNotFound reports true for. Fakes use it
// to model deleted resources.
func NewNotFound() error {
	return requestError{StatusCode: 404, ErrorString: "status code 404 not one of [200], body: "}
}

// Make a request with retries. If ret is not nil, unmarshal the response
// body into it. Returns an error if the status code is not one of the
// provided codes.
func (c *Client) request(r *request, ret interface{}) (int, error) {
	if c.dry && r.method != http.MethodGet {
		return r.exitCodes[0], nil
	}
	resp, err := c.requestRetry(r.method, r.path, r.accept, r.requestBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var okCode bool
	for _, code := range r.exitCodes {
		if code == resp.StatusCode {
			okCode = true
			break
		}
	}
	if !okCode {
		clientError := ClientError{}
		// The body is best-effort context; a non-JSON body is fine.
		json.Unmarshal(b, &clientError)
		return resp.StatusCode, requestError{
			ClientError: clientError,
			StatusCode:  resp.StatusCode,
			ErrorString: fmt.Sprintf("status code %d not one of %v, body: %s", resp.StatusCode, r.exitCodes, string(b)),
		}
	}
	if ret != nil {
		if err := json.Unmarshal(b, ret); err != nil {
			return 0, err
		}
	}
	return resp.StatusCode, nil
}

// Retry on transport failures and 500s with exponential backoff, sleeping
// through rate-limit resets when they are short enough. 4xx responses are
// terminal.
func (c *Client) requestRetry(method, path, accept string, body interface{}) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := initialDelay
	for retries := 0; retries < maxRetries; retries++ {
		resp, err = c.doRequest(method, path, accept, body)
		if err == nil {
			if resp.StatusCode == 403 && resp.Header.Get("X-RateLimit-Remaining") == "0" {
				// The X-RateLimit-Reset header tells us when we may ask again.
				var t int
				if t, err = strconv.Atoi(resp.Header.Get("X-RateLimit-Reset")); err == nil {
					sleepTime := time.Until(time.Unix(int64(t), 0)) + time.Second
					if sleepTime > 0 && sleepTime < maxSleepTime {
						resp.Body.Close()
						timeSleep(sleepTime)
						continue
					}
				}
				break
			} else if resp.StatusCode < 500 {
				// Normal, happy case.
				break
			} else {
				resp.Body.Close()
				timeSleep(backoff)
				backoff *= 2
			}
		} else {
			timeSleep(backoff)
			backoff *= 2
		}
	}
	return resp, err
}

func (c *Client) doRequest(method, path, accept string, body interface{}) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(b)
	}
	req, err := http.NewRequest(method, path, buf)
	if err != nil {
		return nil, err
	}
	if token := c.token(); len(token) > 0 {
		req.Header.Set("Authorization", "Token "+string(token))
	}
	if accept == "" {
		req.Header.Add("Accept", "application/vnd.github.v3+json")
	} else {
		req.Header.Add("Accept", accept)
	}
	// GitHub closes connections prematurely on occasion; keep-alive off
	// avoids flaky POSTs.
	req.Close = true
	return c.client.Do(req)
}

// readPaginatedResults iterates over all pages of the result indicated by
// path, 100 objects per page, following the Link header.
func (c *Client) readPaginatedResults(path, accept string, newObj func() interface{}, accumulate func(interface{})) error {
	url := fmt.Sprintf("%s%s?per_page=100", c.base, path)
	for url != "" {
		resp, err := c.requestRetry(http.MethodGet, url, accept, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("return code not 2XX: %s", resp.Status)
		}
		b, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		obj := newObj()
		if err := json.Unmarshal(b, obj); err != nil {
			return err
		}
		accumulate(obj)
		url = parseLinks(resp.Header.Get("Link"))["next"]
	}
	return nil
}

// GetPullRequest gets the live view of a pull request.
func (c *Client) GetPullRequest(org, repo string, number int) (*PullRequest, error) {
	c.log("GetPullRequest", org, repo, number)
	var pr PullRequest
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.base, org, repo, number),
		exitCodes: []int{200},
	}, &pr)
	return &pr, err
}

// ListReviews returns all reviews on a pull request. This may use more than
// one API token.
func (c *Client) ListReviews(org, repo string, number int) ([]Review, error) {
	c.log("ListReviews", org, repo, number)
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", org, repo, number)
	var reviews []Review
	err := c.readPaginatedResults(
		path,
		"",
		func() interface{} {
			return &[]Review{}
		},
		func(obj interface{}) {
			reviews = append(reviews, *(obj.(*[]Review))...)
		},
	)
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// RequestReview asks the forge to request reviews from logins on a pull
// request.
func (c *Client) RequestReview(org, repo string, number int, logins []string) error {
	c.log("RequestReview", org, repo, number, logins)
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.base, org, repo, number),
		requestBody: map[string][]string{"reviewers": logins},
		exitCodes:   []int{http.StatusCreated},
	}, nil)
	return err
}

// UnrequestReview removes logins from the requested reviewers of a pull
// request.
func (c *Client) UnrequestReview(org, repo string, number int, logins []string) error {
	c.log("UnrequestReview", org, repo, number, logins)
	_, err := c.request(&request{
		method:      http.MethodDelete,
		path:        fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.base, org, repo, number),
		requestBody: map[string][]string{"reviewers": logins},
		exitCodes:   []int{http.StatusOK},
	}, nil)
	return err
}

// ListCheckRuns returns all check runs for a commit. This may use more than
// one API token.
func (c *Client) ListCheckRuns(org, repo, ref string) ([]CheckRun, error) {
	c.log("ListCheckRuns", org, repo, ref)
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", org, repo, ref)
	var runs []CheckRun
	type checkRunList struct {
		CheckRuns []CheckRun `json:"check_runs"`
	}
	err := c.readPaginatedResults(
		path,
		"application/vnd.github.antiope-preview+json",
		func() interface{} {
			return &checkRunList{}
		},
		func(obj interface{}) {
			runs = append(runs, obj.(*checkRunList).CheckRuns...)
		},
	)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// GetIssueLabels returns the labels on an issue or pull request.
func (c *Client) GetIssueLabels(org, repo string, number int) ([]Label, error) {
	c.log("GetIssueLabels", org, repo, number)
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", org, repo, number)
	var labels []Label
	err := c.readPaginatedResults(
		path,
		"",
		func() interface{} {
			return &[]Label{}
		},
		func(obj interface{}) {
			labels = append(labels, *(obj.(*[]Label))...)
		},
	)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// AddLabel adds a label to an issue or pull request.
func (c *Client) AddLabel(org, repo string, number int, label string) error {
	c.log("AddLabel", org, repo, number, label)
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d/labels", c.base, org, repo, number),
		requestBody: []string{label},
		exitCodes:   []int{200},
	}, nil)
	return err
}

// RemoveLabel removes a label from an issue or pull request.
func (c *Client) RemoveLabel(org, repo string, number int, label string) error {
	c.log("RemoveLabel", org, repo, number, label)
	_, err := c.request(&request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("%s/repos/%s/%s/issues/%d/labels/%s", c.base, org, repo, number, url.PathEscape(label)),
		// GitHub sometimes returns 200 for this call, which is a bug on
		// their end.
		exitCodes: []int{200, 204},
	}, nil)
	return err
}

// ReplaceAllLabels replaces the labels of an issue or pull request with the
// provided set.
func (c *Client) ReplaceAllLabels(org, repo string, number int, labels []string) error {
	c.log("ReplaceAllLabels", org, repo, number, labels)
	_, err := c.request(&request{
		method:      http.MethodPut,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d/labels", c.base, org, repo, number),
		requestBody: map[string][]string{"labels": labels},
		exitCodes:   []int{200},
	}, nil)
	return err
}

// CreateComment posts a comment on the issue and returns its id.
func (c *Client) CreateComment(org, repo string, number int, comment string) (int, error) {
	c.log("CreateComment", org, repo, number, comment)
	ic := IssueComment{Body: comment}
	var resp IssueComment
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.base, org, repo, number),
		requestBody: &ic,
		exitCodes:   []int{201},
	}, &resp)
	return resp.ID, err
}

// EditComment replaces the body of an existing comment.
func (c *Client) EditComment(org, repo string, id int, comment string) error {
	c.log("EditComment", org, repo, id, comment)
	ic := IssueComment{Body: comment}
	_, err := c.request(&request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.base, org, repo, id),
		requestBody: &ic,
		exitCodes:   []int{200},
	}, nil)
	return err
}

// DeleteComment deletes a comment.
func (c *Client) DeleteComment(org, repo string, id int) error {
	c.log("DeleteComment", org, repo, id)
	_, err := c.request(&request{
		method:    http.MethodDelete,
		path:      fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.base, org, repo, id),
		exitCodes: []int{204},
	}, nil)
	return err
}

// CreateCommentReaction attaches a reaction to a comment.
func (c *Client) CreateCommentReaction(org, repo string, id int, reaction string) error {
	c.log("CreateCommentReaction", org, repo, id, reaction)
	r := struct {
		Content string `json:"content"`
	}{Content: reaction}
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d/reactions", c.base, org, repo, id),
		accept:      "application/vnd.github.squirrel-girl-preview",
		requestBody: &r,
		exitCodes:   []int{200, 201},
	}, nil)
	return err
}

// CreateStatus creates or updates the status of a commit.
func (c *Client) CreateStatus(org, repo, ref string, s Status) error {
	c.log("CreateStatus", org, repo, ref, s)
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/statuses/%s", c.base, org, repo, ref),
		requestBody: &s,
		exitCodes:   []int{201},
	}, nil)
	return err
}

// GetUserPermission returns the permission level of a user on a repository:
// "admin", "maintain", "write", "read" or "none".
func (c *Client) GetUserPermission(org, repo, user string) (string, error) {
	c.log("GetUserPermission", org, repo, user)
	var res struct {
		Permission string `json:"permission"`
	}
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/collaborators/%s/permission", c.base, org, repo, user),
		exitCodes: []int{200},
	}, &res)
	return res.Permission, err
}

// UnmergablePRError happens when the forge refuses a merge (405).
type UnmergablePRError string

func (e UnmergablePRError) Error() string { return string(e) }

// ModifiedHeadError happens when the head moved under a guarded merge (409).
type ModifiedHeadError string

func (e ModifiedHeadError) Error() string { return string(e) }

// IsMergeRefused reports whether err is an expected merge refusal rather
// than an infrastructure failure.
func IsMergeRefused(err error) bool {
	switch err.(type) {
	case UnmergablePRError, ModifiedHeadError:
		return true
	}
	return false
}

// Merge merges a pull request.
func (c *Client) Merge(org, repo string, number int, details MergeDetails) error {
	c.log("Merge", org, repo, number, details)
	var res struct {
		Message string `json:"message"`
	}
	ec, err := c.request(&request{
		method:      http.MethodPut,
		path:        fmt.Sprintf("%s/repos/%s/%s/pulls/%d/merge", c.base, org, repo, number),
		requestBody: &details,
		exitCodes:   []int{200, 405, 409},
	}, &res)
	if err != nil {
		return err
	}
	if ec == 405 {
		return UnmergablePRError(res.Message)
	} else if ec == 409 {
		return ModifiedHeadError(res.Message)
	}
	return nil
}

// CreateAppInstallationToken exchanges an app JWT for an installation
// token.
func (c *Client) CreateAppInstallationToken(appJWT string, installationID int64) (string, error) {
	c.log("CreateAppInstallationToken", installationID)
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/app/installations/%d/access_tokens", c.base, installationID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Add("Accept", "application/vnd.github.v3+json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		b, _ := ioutil.ReadAll(resp.Body)
		return "", fmt.Errorf("creating installation token: status %d, body: %s", resp.StatusCode, string(b))
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	return res.Token, nil
}
