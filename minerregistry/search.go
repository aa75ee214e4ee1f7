// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package minerregistry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aitbc-network/coordinator/model"
)

// Search returns ACTIVE miner ids satisfying req, excluding excludeSet,
// sorted by (ascending price_per_unit, ascending heartbeat age), limited
// to limit entries. Results are memoized per (req, excludeSet) signature
// and invalidated by any status- or capability-changing write.
func (r *Registry) Search(req model.CapabilityRequirement, excludeSet []string, limit int) ([]string, error) {
	key := searchKey(req, excludeSet)
	if cached, ok := r.searchCache.Get(key); ok {
		ids := cached.([]string)
		if limit > 0 && len(ids) > limit {
			return ids[:limit], nil
		}
		return ids, nil
	}

	miners, err := r.st.ListMinersByStatus(model.MinerActive)
	if err != nil {
		return nil, err
	}
	now := r.clk.NowMs()
	excluded := map[string]struct{}{}
	for _, id := range excludeSet {
		excluded[id] = struct{}{}
	}

	type candidate struct {
		id            string
		pricePerUnit  int64
		heartbeatAge  int64
	}
	var cands []candidate
	for _, m := range miners {
		if _, skip := excluded[m.ID]; skip {
			continue
		}
		if !m.Satisfies(req) {
			continue
		}
		cands = append(cands, candidate{id: m.ID, pricePerUnit: m.PricePerUnit, heartbeatAge: now - m.LastHeartbeatMs})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].pricePerUnit != cands[j].pricePerUnit {
			return cands[i].pricePerUnit < cands[j].pricePerUnit
		}
		return cands[i].heartbeatAge < cands[j].heartbeatAge
	})

	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.id)
	}
	r.searchCache.Add(key, ids)

	if limit > 0 && len(ids) > limit {
		return ids[:limit], nil
	}
	return ids, nil
}

func searchKey(req model.CapabilityRequirement, excludeSet []string) string {
	sortedExcl := append([]string(nil), excludeSet...)
	sort.Strings(sortedExcl)
	sortedFeat := append([]string(nil), req.Features...)
	sort.Strings(sortedFeat)
	return fmt.Sprintf("%s|%d|%s|%s|%s", req.Model, req.MinMemBytes, req.Region,
		strings.Join(sortedFeat, ","), strings.Join(sortedExcl, ","))
}
