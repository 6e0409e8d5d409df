package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Run consumes order-status pushes from the orders namespace and, when
// refreshCron is non-empty, refreshes the authoritative snapshot on that
// schedule. Blocks until the context is cancelled or the inbound channel
// closes.
func (s *Synchronizer) Run(ctx context.Context, inbound <-chan wire.Envelope, refreshCron string) {
	var refreshTimer *time.Timer
	if refreshCron != "" {
		if d := nextCronDuration(refreshCron); d > 0 {
			refreshTimer = time.NewTimer(d)
			defer refreshTimer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-inbound:
			if !ok {
				return
			}
			if env.Event != wire.EvNotifyOrderStatus {
				log.Printf("tracking: ignoring event %q", env.Event)
				continue
			}
			var p wire.NotifyOrderStatus
			if err := json.Unmarshal(env.Data, &p); err != nil {
				log.Printf("tracking: bad notifyOrderStatus payload dropped: %v", err)
				continue
			}
			s.admitPush(ctx, p)
		case p := <-s.vetted:
			s.ApplyPush(p)
		case <-timerChan(refreshTimer):
			if err := s.Reconcile(ctx); err != nil {
				log.Printf("tracking: scheduled refresh: %v", err)
			}
			if d := nextCronDuration(refreshCron); d > 0 {
				refreshTimer.Reset(d)
			}
		}
	}
}

// admitPush merges a push for a tracked order directly. A push for an
// unknown order id is vetted against the REST status endpoint off the loop,
// so a slow fetch never stalls later pushes; a stale reference (order gone
// server-side) is dropped, anything else re-enters the loop for the merge.
func (s *Synchronizer) admitPush(ctx context.Context, p wire.NotifyOrderStatus) {
	if err := p.Validate(); err != nil {
		log.Printf("tracking: %v", err)
		return
	}

	s.mu.RLock()
	_, known := s.orders[p.OrderID]
	s.mu.RUnlock()
	if known || s.rest == nil {
		s.ApplyPush(p)
		return
	}

	go func() {
		if _, found, err := s.rest.FetchOrderStatus(ctx, p.OrderID); err == nil && !found {
			log.Printf("tracking: push for stale order %s dropped", p.OrderID)
			return
		}
		select {
		case s.vetted <- p:
		case <-ctx.Done():
		}
	}()
}

// timerChan returns the timer's channel, or nil if the timer is nil.
// A nil channel blocks forever in select, which is the desired behavior
// when no refresh schedule is configured.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
