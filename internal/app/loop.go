package app

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"dejabot/internal/dedup"
	"dejabot/internal/eventbus"
	kit "dejabot/internal/transport"
	logx "dejabot/pkg/logx"
)

// consume is the single sequential control path for dedup state: only
// this loop calls engine.Process, so no two appends ever interleave.
// The rollover timer reaches the same state through the engine's own
// mutex, never through here.
func (a *App) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			m := up.Message
			if m == nil {
				continue
			}

			a.optMu.Lock()
			group := a.group
			replyTo := a.replyToOriginal
			limiter := a.limiter
			a.optMu.Unlock()

			// Single-scope store: only the configured group is tracked.
			if m.ChatID != group {
				continue
			}

			observedAt := m.SentAt
			if observedAt.IsZero() {
				observedAt = time.Now()
			}
			ev := dedup.Event{
				ID:         eventID(m),
				Text:       m.Text,
				ObservedAt: observedAt,
			}
			res := a.engine.Process(ctx, ev)
			if !res.Duplicate {
				continue
			}
			a.reply(ctx, m, res.Reply, replyTo, limiter)
		}
	}
}

// eventID is stable across redeliveries: chat id + the platform's own
// message id.
func eventID(m *kit.Message) string {
	return strconv.FormatInt(m.ChatID, 10) + ":" + strconv.Itoa(m.ID)
}

// reply hands the formatted text to the sink, fire-and-forget: a
// failed or throttled send is logged and never rolls back the append.
func (a *App) reply(ctx context.Context, m *kit.Message, text string, replyTo bool, limiter *rate.Limiter) {
	if limiter != nil && !limiter.Allow() {
		a.log.Warn("duplicate reply throttled", logx.Int64("chat_id", m.ChatID), logx.Int("message_id", m.ID))
		return
	}

	opt := &kit.SendOptions{DisablePreview: true}
	if replyTo {
		opt.ReplyTo = &kit.MessageRef{ChatID: m.ChatID, MessageID: m.ID}
	}
	target := kit.ChatTarget{ChatID: m.ChatID}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := a.adapter.SendText(sctx, target, text, opt); err != nil {
			a.log.Warn("duplicate reply send failed", logx.Err(err), logx.Int64("chat_id", m.ChatID))
		}
	}()
}

// observe logs engine signals published on the bus.
func (a *App) observe(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(16)
	defer unsub()
	log := a.log.With(logx.String("comp", "observer"))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.TypeDuplicate:
				if p, ok := ev.Data.(eventbus.DuplicatePayload); ok {
					log.Debug("duplicate detected",
						logx.String("key", p.Key),
						logx.Int("prior_occurrences", p.Occurrences),
						logx.Time("observed_at", p.ObservedAt))
				}
			case eventbus.TypeRollover:
				if p, ok := ev.Data.(eventbus.RolloverPayload); ok {
					log.Info("tracking window rolled over",
						logx.Time("boundary", p.Boundary),
						logx.Int("keys_removed", p.KeysRemoved),
						logx.Int("keys_kept", p.KeysKept))
				}
			}
		}
	}
}
