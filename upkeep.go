package subhub

import (
	"context"
	"fmt"

	"github.com/xraph/subhub/schedule"
)

// ProcessResult summarizes one Process call.
type ProcessResult struct {
	// Bucket is the due time that was drained.
	Bucket uint64 `json:"bucket"`
	// Time is the hub time the batch ran at.
	Time uint64 `json:"time"`

	Processed int `json:"processed"`
	Charged   int `json:"charged"`
	Expired   int `json:"expired"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
	// Remaining entries stay due in Bucket for the next call.
	Remaining int `json:"remaining"`

	Failures MultiError `json:"-"`
}

func (r *ProcessResult) fail(err error) { r.Failures.Add(err) }

// CheckDue is the cheap read-only probe for automation actors. It reports
// whether any bucket at or before the current time still holds entries and
// returns a hint naming the earliest one.
func (h *Hub) CheckDue(ctx context.Context) (bool, []byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	due, ok, err := h.store.EarliestDue(ctx, h.clock.Now())
	if err != nil || !ok {
		return false, nil, err
	}
	return true, schedule.EncodeHint(due), nil
}

// Process settles up to MaxPaymentsPerBucket entries (spanning at most
// MaxServicesPerBucket services) from the bucket named by hint. An empty
// hint selects the earliest due bucket. Entries leave the bucket before any
// transfer is attempted, so repeated or overlapping calls never settle an
// entry twice, and calling Process on a drained bucket is a no-op. Process
// needs no caller identity.
func (h *Hub) Process(ctx context.Context, hint []byte) (*ProcessResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()

	var bucket uint64
	if len(hint) == 0 {
		due, ok, err := h.store.EarliestDue(ctx, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &ProcessResult{Bucket: now, Time: now}, nil
		}
		bucket = due
	} else {
		due, err := schedule.DecodeHint(hint)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidHint, err)
		}
		if due > now {
			return nil, fmt.Errorf("%w: bucket %d is not due before %d", ErrInvalidHint, due, now)
		}
		bucket = due
	}

	entries, err := h.store.PopEntries(ctx, bucket, schedule.Limits{
		MaxEntries:  h.cfg.MaxPaymentsPerBucket,
		MaxServices: h.cfg.MaxServicesPerBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("subhub: take bucket %d: %w", bucket, err)
	}

	res := &ProcessResult{Bucket: bucket, Time: now, Processed: len(entries)}
	for _, e := range entries {
		h.settle(ctx, e, now, res)
	}

	remaining, err := h.store.CountEntries(ctx, bucket)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining

	if res.Processed > 0 {
		h.plugins.EmitUpkeepPerformed(ctx, bucket, res.Processed, res.Remaining)
		h.logger.Debug("bucket processed",
			"bucket", bucket,
			"processed", res.Processed,
			"charged", res.Charged,
			"expired", res.Expired,
			"dropped", res.Dropped,
			"failed", res.Failed,
			"remaining", res.Remaining,
		)
	}

	return res, nil
}
