// Package bus implements the typed, topic-keyed EventBus that is the
// control plane's only cross-component communication channel (spec §4.1).
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/flowgovernor/internal/clock"
)

// Wildcard is the special topic that receives every published event.
const Wildcard = "*"

// Event is the canonical envelope published on the bus (spec §6).
type Event struct {
	Topic     string
	Timestamp int64
	Data      any
	Signature string
	CID       string
}

// Subscriber budget: a subscriber callback that blocks longer than this
// is assumed hung; the bus does not kill it (Go has no preemptive cancel
// for a plain func call) but it records an overrun so ambient metrics
// can surface it. See spec §5 "Backpressure".
const defaultCallBudget = 5 * time.Millisecond

type subscription struct {
	id int64
	cb func(Event)
}

// Bus is a synchronous, in-memory pub/sub fan-out with bounded history.
type Bus struct {
	clock clock.Clock

	mu    sync.RWMutex
	subs  map[string][]subscription
	nextID int64

	histMu  sync.Mutex
	history []Event
	maxHist int

	callBudget time.Duration
	overruns   atomic.Int64
	onOverrun func(topic string, took time.Duration)
}

// Config controls bounded history size and the per-subscriber call budget.
type Config struct {
	MaxHistory int
	CallBudget time.Duration
	// OnOverrun, if set, is invoked (outside any lock) whenever a
	// subscriber callback exceeds CallBudget.
	OnOverrun func(topic string, took time.Duration)
}

func DefaultConfig() Config {
	return Config{MaxHistory: 10_000, CallBudget: defaultCallBudget}
}

// New creates an EventBus bound to clk for timestamping published events.
func New(clk clock.Clock, cfg Config) *Bus {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10_000
	}
	if cfg.CallBudget <= 0 {
		cfg.CallBudget = defaultCallBudget
	}
	return &Bus{
		clock:      clk,
		subs:       make(map[string][]subscription),
		maxHist:    cfg.MaxHistory,
		callBudget: cfg.CallBudget,
		onOverrun:  cfg.OnOverrun,
	}
}

// Publish appends the event to history and delivers it synchronously, in
// subscriber registration order, to every subscriber of topic and of the
// wildcard topic. A panic raised by one subscriber is recovered and does
// not prevent delivery to the remaining subscribers (spec §4.1/§7).
func (b *Bus) Publish(topic string, data any) Event {
	ev := Event{
		Topic:     topic,
		Timestamp: b.clock.NowMs(),
		Data:      data,
		CID:       uuid.NewString(),
	}

	b.appendHistory(ev)

	b.mu.RLock()
	direct := append([]subscription(nil), b.subs[topic]...)
	wild := append([]subscription(nil), b.subs[Wildcard]...)
	b.mu.RUnlock()

	b.deliver(topic, ev, direct)
	if topic != Wildcard {
		b.deliver(topic, ev, wild)
	}
	return ev
}

func (b *Bus) deliver(topic string, ev Event, subs []subscription) {
	for _, s := range subs {
		b.callOne(topic, ev, s)
	}
}

func (b *Bus) callOne(topic string, ev Event, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			// A faulty subscriber must not disrupt others; swallow and move on.
			_ = r
		}
	}()
	start := time.Now()
	s.cb(ev)
	if took := time.Since(start); took > b.callBudget {
		b.overruns.Add(1)
		if b.onOverrun != nil {
			b.onOverrun(topic, took)
		}
	}
}

// Subscribe registers cb for topic (or Wildcard for every topic) and
// returns an unsubscribe function. Duplicate subscriptions are allowed.
func (b *Bus) Subscribe(topic string, cb func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, cb: cb})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// HistoryFilter scopes a History query.
type HistoryFilter struct {
	Topic string
	Since int64
	Limit int
}

// History returns a read-only snapshot of published events matching filter.
func (b *Bus) History(filter HistoryFilter) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	out := make([]Event, 0, len(b.history))
	for _, ev := range b.history {
		if filter.Topic != "" && ev.Topic != filter.Topic {
			continue
		}
		if ev.Timestamp < filter.Since {
			continue
		}
		out = append(out, ev)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Overruns returns the number of subscriber calls that exceeded budget.
func (b *Bus) Overruns() int64 { return b.overruns.Load() }

func (b *Bus) appendHistory(ev Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		overflow := len(b.history) - b.maxHist
		b.history = b.history[overflow:]
	}
}
