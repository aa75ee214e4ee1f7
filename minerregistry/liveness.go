// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package minerregistry

import (
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

// LivenessSweep marks every non-OFFLINE miner whose heartbeat is older
// than livenessTimeoutMs OFFLINE, then notifies the LostJobNotifier for
// every job in that miner's in_flight_jobs, in that order:
// the miner flips state first so a sweep interrupted mid-iteration
// resumes correctly next time, since the miner stays OFFLINE and its
// in_flight_jobs remain non-empty until Lifecycle clears them.
func (r *Registry) LivenessSweep(nowMs int64) error {
	active, err := r.st.ListMinersByStatus(model.MinerActive)
	if err != nil {
		return err
	}
	draining, err := r.st.ListMinersByStatus(model.MinerDraining)
	if err != nil {
		return err
	}
	candidates := append(active, draining...)

	for _, m := range candidates {
		if nowMs-m.LastHeartbeatMs <= r.livenessTimeoutMs {
			continue
		}
		if err := r.st.SetMinerStatus(m.ID, model.MinerOffline, m.Status); err != nil {
			if !store.IsStale(err) {
				return err
			}
			// Lost the race to another sweep or a concurrent drain/resume;
			// the miner's status already moved, skip it this pass.
			continue
		}
		r.mu.Lock()
		notifier := r.notifier
		r.mu.Unlock()
		if notifier != nil {
			for jobID := range m.InFlightJobs {
				notifier.OnMinerLost(jobID)
			}
		}
	}
	r.searchCache.Purge()
	return nil
}
