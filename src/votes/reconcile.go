package votes

import (
	"context"
	"time"

	"git.handmade.network/hmn/discuss/src/jobs"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/utils"
)

// Replies examined per reconciliation pass.
const reconcileBatchSize = 500

/*
Finds replies whose stored count has drifted from their votes and fixes them.
onFixed is called for every reply that changed, after its transaction has
committed. Returns the number of replies fixed.
*/
func (a *Aggregator) ReconcileDrifted(ctx context.Context, onFixed func(drift models.VoteDrift)) (int, error) {
	drifts, err := a.store.DriftedReplies(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, candidate := range drifts {
		drift, err := a.Reconcile(ctx, candidate.ReplyID)
		if err != nil {
			logging.ExtractLogger(ctx).Error().Err(err).Int("reply", candidate.ReplyID).Msg("Failed to reconcile vote count")
			continue
		}
		if drift.Stored == drift.Actual {
			continue
		}
		fixed++
		logging.ExtractLogger(ctx).Warn().
			Int("reply", drift.ReplyID).
			Int("stored", drift.Stored).
			Int("actual", drift.Actual).
			Msg("Fixed drifted vote count")
		if onFixed != nil {
			onFixed(drift)
		}
	}
	return fixed, nil
}

// Runs ReconcileDrifted every interval until the job is canceled.
func (a *Aggregator) PeriodicallyReconcile(interval time.Duration, onFixed func(drift models.VoteDrift)) *jobs.Job {
	if interval <= 0 {
		return jobs.Noop()
	}

	return jobs.Go("vote reconciliation", func(job *jobs.Job) {
		t := utils.NewInstaTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				n, err := a.ReconcileDrifted(job.Ctx, onFixed)
				if err == nil {
					if n > 0 {
						job.Logger.Info().Int("num fixed", n).Msg("Reconciled vote counts")
					}
				} else {
					job.Logger.Error().Err(err).Msg("Failed to reconcile vote counts")
				}
			case <-job.Canceled():
				return
			}
		}
	})
}
