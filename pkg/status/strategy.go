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

import "github.com/towline-dev/towline/pkg/store"

// ResolveStrategy picks the merge strategy for a pull request. A per-PR
// override beats every rule; rules are matched most-specific first, with
// the literal (*, *) rule acting as a configured default override before
// the repository's code default.
func ResolveStrategy(repo store.Repository, pr store.PullRequest, rules []store.MergeRule, base, head string) store.MergeStrategy {
	if pr.StrategyOverride != "" {
		return pr.StrategyOverride
	}
	for _, pair := range [][2]string{
		{base, head},
		{store.RuleBranchWildcard, head},
		{base, store.RuleBranchWildcard},
		{store.RuleBranchWildcard, store.RuleBranchWildcard},
	} {
		for _, rule := range rules {
			if rule.BaseBranch == pair[0] && rule.HeadBranch == pair[1] {
				return rule.Strategy
			}
		}
	}
	return repo.DefaultStrategy
}
