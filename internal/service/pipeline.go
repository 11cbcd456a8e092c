package service

import (
	"context"

	"go.uber.org/zap"
)

// Pipeline ties the round-capture leg (snapshot + change detection) and the
// settlement leg together. The cron schedule and the manual admin trigger go
// through the same entrypoints; the settlement lock makes them mutually
// exclusive.
type Pipeline struct {
	Snapshot   *SnapshotService
	Detector   *ChangeDetector
	Settlement *SettlementService
	Logger     *zap.Logger
}

// RunRound captures a new round and snapshots prediction changes. Each step
// depends on the previous one's output, so they run strictly in order.
func (p *Pipeline) RunRound(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.Snapshot != nil {
		if _, err := p.Snapshot.RunOnce(ctx); err != nil {
			return err
		}
	}
	if p.Detector != nil {
		if _, err := p.Detector.RunOnce(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunSettlement resolves and settles eligible predictions.
func (p *Pipeline) RunSettlement(ctx context.Context) (PipelineResult, error) {
	if p == nil || p.Settlement == nil {
		return PipelineResult{}, nil
	}
	return p.Settlement.RunOnce(ctx)
}
