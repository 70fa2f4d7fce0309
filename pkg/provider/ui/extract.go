package ui

import (
	"context"
	"strings"
	"time"
)

// textReader captures the provider's currently visible response text.
// The real reader evaluates the page; tests substitute fakes.
type textReader func(ctx context.Context) (string, error)

type extractState int

const (
	statePolling extractState = iota
	stateStable
	stateTimedOut
)

// stabilizeConfig bounds one extraction wait. firstInterval covers the
// initial poll only (image asks wait longer before the first read);
// later polls use pollInterval. baseline is the response region's text
// captured before submission, so a previous answer is never accepted as
// the new one.
type stabilizeConfig struct {
	timeout       time.Duration
	pollInterval  time.Duration
	firstInterval time.Duration
	baseline      string
}

// waitForStableText polls read until the captured text is non-empty,
// differs from the baseline and is unchanged across two consecutive
// polls. It gives up no later than timeout plus one poll interval,
// reporting stateTimedOut rather than an error; the error return is
// reserved for context cancellation.
func waitForStableText(ctx context.Context, read textReader, cfg stabilizeConfig) (string, extractState, error) {
	interval := cfg.firstInterval
	if interval <= 0 {
		interval = cfg.pollInterval
	}

	deadline := time.Now().Add(cfg.timeout)
	var previous string
	seen := false

	for {
		select {
		case <-ctx.Done():
			return "", statePolling, ctx.Err()
		case <-time.After(interval):
		}
		interval = cfg.pollInterval

		current, err := read(ctx)
		if err != nil {
			// A failed read means the page is mid-render or navigating;
			// stability starts over.
			seen = false
		} else {
			candidate := strings.TrimSpace(current)
			if candidate != "" && candidate != cfg.baseline {
				if seen && candidate == previous {
					return candidate, stateStable, nil
				}
				previous = candidate
				seen = true
			} else {
				seen = false
			}
		}

		if !time.Now().Before(deadline) {
			return "", stateTimedOut, nil
		}
	}
}
