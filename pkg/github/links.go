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

import "strings"

// parseLinks returns a map of the rel names to urls found in a Link header.
// See https://tools.ietf.org/html/rfc5988. Only the forms GitHub emits are
// handled.
func parseLinks(h string) map[string]string {
	links := map[string]string{}
	for _, link := range strings.Split(h, ",") {
		parts := strings.Split(link, ";")
		if len(parts) < 2 {
			continue
		}
		link := strings.TrimSpace(parts[0])
		if !strings.HasPrefix(link, "<") || !strings.HasSuffix(link, ">") {
			continue
		}
		link = strings.Trim(link, "<>")
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, `rel="`) || !strings.HasSuffix(param, `"`) {
				continue
			}
			links[strings.Trim(strings.TrimPrefix(param, "rel="), `"`)] = link
		}
	}
	return links
}
