package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// RunCycle runs a single cycle without the pacing sleep.
func (b *Brain) RunCycle(ctx context.Context) error {
	return b.cycle(ctx)
}

// CycleState exposes the loop-owned state to tests.
func (b *Brain) CycleState() *model.CycleState {
	return &b.state
}

func (b *Brain) Pause() time.Duration {
	return b.pause()
}

const FinishNowText = finishNowText

// Prime records the box contents the way Run does before its first cycle.
func (b *Brain) Prime() error {
	return b.scanner.Prime()
}
