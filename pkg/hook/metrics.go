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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towline_webhook_events_total",
		Help: "Webhook events received, by event type.",
	}, []string{"event_type"})
	handleErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towline_event_handling_errors_total",
		Help: "Event handler failures, by event type.",
	}, []string{"event_type"})
	responseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "towline_webhook_responses_total",
		Help: "HTTP responses served to webhook deliveries, by status code.",
	}, []string{"response_code"})
)

func init() {
	prometheus.MustRegister(webhookCounter)
	prometheus.MustRegister(handleErrorCounter)
	prometheus.MustRegister(responseCounter)
}
