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

package hook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/towline-dev/towline/pkg/github"
)

// Server implements http.Handler. It validates incoming webhooks and then
// dispatches them asynchronously, one goroutine per event.
type Server struct {
	dispatcher     *Dispatcher
	tokenGenerator func() []byte
	log            *logrus.Entry

	// Tracks running handlers for graceful shutdown.
	wg sync.WaitGroup
}

// NewServer wires a webhook server. tokenGenerator yields the shared HMAC
// secret.
func NewServer(dispatcher *Dispatcher, tokenGenerator func() []byte) *Server {
	return &Server{
		dispatcher:     dispatcher,
		tokenGenerator: tokenGenerator,
		log:            logrus.WithField("component", "hook"),
	}
}

// ServeHTTP validates an incoming webhook and puts it into the queue.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventType, eventGUID, payload, ok := github.ValidateWebhook(w, r, s.tokenGenerator)
	if !ok {
		responseCounter.WithLabelValues(strconv.Itoa(http.StatusForbidden)).Inc()
		return
	}
	fmt.Fprint(w, "Event received. Have a nice day.")
	responseCounter.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	if err := s.demuxEvent(eventType, eventGUID, payload); err != nil {
		s.log.WithError(err).Error("Error parsing event.")
	}
}

func (s *Server) demuxEvent(eventType, eventGUID string, payload []byte) error {
	l := s.log.WithFields(logrus.Fields{
		"event-type":     eventType,
		github.EventGUID: eventGUID,
	})
	webhookCounter.WithLabelValues(eventType).Inc()
	switch eventType {
	case "pull_request":
		var pre github.PullRequestEvent
		if err := json.Unmarshal(payload, &pre); err != nil {
			return err
		}
		pre.GUID = eventGUID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dispatcher.handlePullRequestEvent(l, pre); err != nil {
				handleErrorCounter.WithLabelValues(eventType).Inc()
				l.WithError(err).Error("Error handling PullRequestEvent.")
			}
		}()
	case "issue_comment":
		var ice github.IssueCommentEvent
		if err := json.Unmarshal(payload, &ice); err != nil {
			return err
		}
		ice.GUID = eventGUID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dispatcher.handleIssueCommentEvent(l, ice); err != nil {
				handleErrorCounter.WithLabelValues(eventType).Inc()
				l.WithError(err).Error("Error handling IssueCommentEvent.")
			}
		}()
	case "pull_request_review":
		var re github.ReviewEvent
		if err := json.Unmarshal(payload, &re); err != nil {
			return err
		}
		re.GUID = eventGUID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dispatcher.handleReviewEvent(l, re); err != nil {
				handleErrorCounter.WithLabelValues(eventType).Inc()
				l.WithError(err).Error("Error handling ReviewEvent.")
			}
		}()
	case "check_suite":
		var cse github.CheckSuiteEvent
		if err := json.Unmarshal(payload, &cse); err != nil {
			return err
		}
		cse.GUID = eventGUID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dispatcher.handleCheckSuiteEvent(l, cse); err != nil {
				handleErrorCounter.WithLabelValues(eventType).Inc()
				l.WithError(err).Error("Error handling CheckSuiteEvent.")
			}
		}()
	default:
		l.Debug("Ignoring unhandled event type.")
	}
	return nil
}

// GracefulShutdown waits until all in-flight events are fully processed.
func (s *Server) GracefulShutdown() {
	s.wg.Wait()
}
