package labparser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/labparser/internal/logger"
)

type batchOptions struct {
	workers       int
	recordTimeout time.Duration
}

// BatchOption configures ParseAll.
type BatchOption func(*batchOptions)

// WithWorkers sets how many records are parsed at once. Values below one use
// GOMAXPROCS.
func WithWorkers(n int) BatchOption {
	return func(o *batchOptions) {
		o.workers = n
	}
}

// WithRecordTimeout bounds the time spent on one record. The budget is
// checked between rules, and no single search may run longer than the
// budget either, so a record stops within twice the budget at most. A record
// that runs out of time is marked unparsed; the batch carries on.
func WithRecordTimeout(d time.Duration) BatchOption {
	return func(o *batchOptions) {
		o.recordTimeout = d
	}
}

// ParseAll parses every record's RawText and stores the outcome in its
// Results field. Failures are scoped to a single record; ParseAll only
// returns an error when ctx itself is done, in which case records not yet
// started keep their previous Results.
func (rs *RuleSet) ParseAll(ctx context.Context, records []*Record, opts ...BatchOption) error {
	o := batchOptions{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	parser := rs
	if o.recordTimeout > 0 && rs != nil {
		parser = rs.withSearchLimit(o.recordTimeout)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			res := parser.parseRecord(gctx, rec, o.recordTimeout)
			rec.Results = &res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// withSearchLimit returns a copy of rs whose searches give up after d. The
// copy is built once per duration and shares prefilters with rs.
func (rs *RuleSet) withSearchLimit(d time.Duration) *RuleSet {
	rs.limitedMu.Lock()
	defer rs.limitedMu.Unlock()

	if limited, ok := rs.limited[d]; ok {
		return limited
	}

	limited := &RuleSet{
		groups:  make([]ruleGroup, len(rs.groups)),
		dropped: rs.dropped,
		size:    rs.size,
		stats:   rs.stats,
	}
	for gi, g := range rs.groups {
		rules := make([]*CompiledRule, len(g.rules))
		for i, r := range g.rules {
			rules[i] = r.withMatchTimeout(d)
		}
		limited.groups[gi] = ruleGroup{definitionID: g.definitionID, rules: rules, filter: g.filter}
	}

	if rs.limited == nil {
		rs.limited = make(map[time.Duration]*RuleSet)
	}
	rs.limited[d] = limited
	return limited
}

// parseRecord never fails: a timeout, cancellation or panic becomes an
// unparsed result carrying the error.
func (rs *RuleSet) parseRecord(ctx context.Context, rec *Record, timeout time.Duration) (res ParseResult) {
	var text *string
	switch t := rec.RawText.(type) {
	case string:
		text = &t
	case *string:
		text = t
	default:
		logger.RecordsParsed.Add(1)
		return noneResult(nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = rs.recordFailed(rec, text, fmt.Errorf("panic: %v", r))
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := rs.ParseContext(ctx, text)
	if err != nil {
		return rs.recordFailed(rec, text, err)
	}
	logger.RecordsParsed.Add(1)
	return res
}

func (rs *RuleSet) recordFailed(rec *Record, text *string, err error) ParseResult {
	logger.RecordTimeouts.Add(1)
	logger.Warn("record parse abandoned",
		"record_id", rec.ID,
		"rules", rs.Len(),
		"error", err)
	trimmed := ""
	if text != nil {
		trimmed = strings.TrimSpace(*text)
	}
	return failedResult(trimmed, err)
}
