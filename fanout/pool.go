// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package fanout runs independent queries concurrently, bounded by a worker
pool that can be shared between multiple concurrent gatherings.

Each query gets its own timeout. A failing or timed-out query never aborts its
siblings; instead, its error is handed back to the caller alongside the results
of the successful queries. [Gather] returns only after all queries it started
have returned.
*/
package fanout

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of queries in flight. The bound spans all
// concurrent calls to [Gather] using the same Pool, and not just a single
// call.
type Pool struct {
	workers int
	sem     *semaphore.Weighted
}

// New returns a new Pool allowing up to the specified number of queries in
// flight. A zero or negative number of workers defaults to GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Workers returns the maximum number of queries in flight.
func (p *Pool) Workers() int { return p.workers }

// outcome of querying an individual item.
type outcome[R any] struct {
	result R
	err    error
}

// Gather runs the query for each of the specified items in parallel, with at
// most [Pool.Workers] queries in flight. Each query runs with its own context
// derived from ctx and limited to the specified timeout; a zero timeout means
// no limit other than ctx. A query that returns successfully, but only after
// its timeout has expired, is still considered to have timed out.
//
// Gather returns the results of the successful queries and the errors of the
// failed ones, both in no particular order. If ctx gets cancelled while waiting
// for a free worker, the items not yet started are reported as failed.
func Gather[T, R any](ctx context.Context, p *Pool, items []T, timeout time.Duration, query func(context.Context, T) (R, error)) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}
	// Collect the outcomes through a buffered channel large enough to never
	// block any query; the last outcome closes the channel.
	outcomes := make(chan outcome[R], len(items))
	var theendisnear atomic.Int64
	theendisnear.Add(int64(len(items)))
	report := func(o outcome[R]) {
		outcomes <- o
		if theendisnear.Add(-1) == 0 {
			close(outcomes)
		}
	}
	for idx, item := range items {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			err = fmt.Errorf("no worker available: %w", err)
			for range items[idx:] {
				report(outcome[R]{err: err})
			}
			break
		}
		go func(item T) {
			defer p.sem.Release(1)
			report(run(ctx, item, timeout, query))
		}(item)
	}
	results := make([]R, 0, len(items))
	var errs []error
	for o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		results = append(results, o.result)
	}
	return results, errs
}

// run a single query under its own timeout.
func run[T, R any](ctx context.Context, item T, timeout time.Duration, query func(context.Context, T) (R, error)) outcome[R] {
	qctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := query(qctx, item)
	if err != nil {
		return outcome[R]{err: err}
	}
	if cerr := qctx.Err(); cerr != nil {
		return outcome[R]{err: fmt.Errorf("query result arrived too late: %w", cerr)}
	}
	return outcome[R]{result: result}
}
