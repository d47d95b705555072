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

package status

import (
	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

// checksAppSlug filters check runs down to the CI app the bot observes.
const checksAppSlug = "github-actions"

// FoldCheckRuns reduces a commit's check runs to a single gate state.
// Folding the same list twice yields the same result, so duplicate
// deliveries are harmless.
func FoldCheckRuns(runs []github.CheckRun, checksEnabled bool) store.StatusState {
	if !checksEnabled {
		return store.StatusSkipped
	}

	// Re-runs produce several runs with the same name; only the most
	// recently started one counts.
	latest := map[string]github.CheckRun{}
	var order []string
	for _, run := range runs {
		if run.App.Slug != checksAppSlug {
			continue
		}
		prev, seen := latest[run.Name]
		if !seen {
			order = append(order, run.Name)
			latest[run.Name] = run
			continue
		}
		if run.StartedAt.After(prev.StartedAt) {
			latest[run.Name] = run
		}
	}

	state := store.StatusWaiting
	sawConclusions := true
	for _, name := range order {
		switch latest[name].Conclusion {
		case github.CheckRunConclusionFailure, github.CheckRunConclusionCancelled, github.CheckRunConclusionTimedOut:
			return store.StatusFail
		case "":
			sawConclusions = false
		}
	}
	if len(order) > 0 && sawConclusions {
		state = store.StatusPass
	}
	return state
}
