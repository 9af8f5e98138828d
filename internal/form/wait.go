package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/log"
)

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errPending = errors.New("condition not met yet")

// poll calls cond every interval until it reports true or the budget is used
// up. cond is always called at least once and an error from it ends polling
// immediately. Running out of budget is not an error.
func poll(ctx context.Context, budget, interval time.Duration, cond func(ctx context.Context) (bool, error)) (bool, error) {
	bctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var condErr error
	operation := func() error {
		ok, err := cond(ctx)
		if err != nil {
			condErr = err
			return backoff.Permanent(err)
		}
		if !ok {
			return errPending
		}
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(interval), bctx))
	switch {
	case err == nil:
		return true, nil
	case condErr != nil:
		return false, condErr
	case ctx.Err() != nil:
		return false, ctx.Err()
	}
	return false, nil
}

// settle waits for the document to finish loading and then for the fixed
// settling delay, which covers client-side rendering after the load event.
func settle(ctx context.Context, page browser.Page, t Timing) error {
	ready, err := poll(ctx, t.SettleTimeout, t.PollInterval, page.Ready)
	if err != nil {
		return err
	}
	if !ready {
		log.LoggerFromContext(ctx).Debug(fmt.Sprintf("document not ready after %v, continuing", t.SettleTimeout))
	}
	return pause(ctx, t.SettleDelay)
}
