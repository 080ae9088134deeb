package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/utils/async"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not finish")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("outlives the caller context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ctxErr error
		done := async.Dispatch(ctx, func(ctx context.Context) error {
			ctxErr = ctx.Err()
			return nil
		})
		wait(t, done)
		gt.NoError(t, ctxErr)
	})

	t.Run("errors and panics are contained", func(t *testing.T) {
		wait(t, async.Dispatch(context.Background(), func(ctx context.Context) error {
			return errors.New("rediscovery failed")
		}))
		wait(t, async.Dispatch(context.Background(), func(ctx context.Context) error {
			panic("boom")
		}))
	})
}
