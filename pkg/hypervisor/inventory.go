// Copyright 2026 The linux-practice Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hypervisor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// UnknownIP is reported when a VM's address could not be determined.
// IP lookup failures degrade to this value rather than failing the
// whole listing.
const UnknownIP = "unknown"

// VMSummary is one row of the inventory listing.
type VMSummary struct {
	Name   string
	Status State
	IP     string
}

// maxIPLookups bounds the concurrent per-VM IP queries during a listing.
const maxIPLookups = 8

// ListVMs enumerates all domains, defined-but-stopped and running alike,
// as one deduplicated, name-sorted list. Each entry carries its run state
// and a best-effort IP.
func (s *Session) ListVMs(ctx context.Context) ([]VMSummary, error) {
	if s.conn == nil {
		return nil, ErrConnNil
	}

	doms, err := s.conn.ListAllDomains(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListDomains, err)
	}

	summaries := make([]VMSummary, len(doms))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxIPLookups)

	for i := range doms {
		g.Go(func() error {
			dom := &doms[i]
			defer func() { _ = dom.Free() }()

			name, err := dom.GetName()
			if err != nil {
				summaries[i] = VMSummary{Status: StateError, IP: UnknownIP}
				return nil
			}

			summary := VMSummary{Name: name, Status: StateError, IP: UnknownIP}
			if state, _, err := dom.GetState(); err == nil {
				summary.Status = mapDomainState(state)
			}

			if summary.Status == StateRunning {
				vm := &VM{name: name, dom: dom}
				if ip, err := s.GetIP(vm); err == nil {
					summary.IP = ip
				}
			}

			summaries[i] = summary
			return nil
		})
	}
	_ = g.Wait()

	return normalizeSummaries(summaries), nil
}

// normalizeSummaries drops nameless entries, deduplicates by name keeping
// the first occurrence and sorts the result by name.
func normalizeSummaries(in []VMSummary) []VMSummary {
	seen := make(map[string]bool, len(in))
	out := make([]VMSummary, 0, len(in))
	for _, s := range in {
		if s.Name == "" || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
