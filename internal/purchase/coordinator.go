package purchase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/pending"
	"github.com/fatflowers/paycoord/pkg/tool"
)

var ErrClosed = errors.New("purchase coordinator closed")

// slot holds the coordinator-owned state of one provider. Only Start, Finish,
// Reset and the unfinished listener path mutate it, always under Coordinator.mu.
type slot struct {
	provider   Provider
	processing bool
	finishing  bool
	attemptID  string
	result     *Result
	cancel     context.CancelFunc
}

// Unfinished is a vendor-confirmed purchase that was never acknowledged.
type Unfinished struct {
	Kind       Kind            `json:"kind"`
	Result     *Result         `json:"result"`
	Pending    *pending.Record `json:"pending,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Coordinator presents one purchase API over several payment providers and
// guarantees that at most one purchase is in flight at a time.
type Coordinator struct {
	log        *zap.SugaredLogger
	progress   ProgressFunc
	store      pending.Store
	pendingKey string

	mu         sync.Mutex
	slots      map[Kind]*slot
	order      []Kind
	unfinished map[string]*Unfinished
	closed     bool
}

type Option func(*Coordinator)

// WithPendingStore persists in-flight purchase metadata under key.
func WithPendingStore(store pending.Store, key string) Option {
	return func(c *Coordinator) {
		c.store = store
		if key != "" {
			c.pendingKey = key
		}
	}
}

// New builds a coordinator and registers every provider's vendor listeners.
// Listeners are removed by Close.
func New(log *zap.SugaredLogger, progress ProgressFunc, providers []Provider, opts ...Option) (*Coordinator, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Coordinator{
		log:        log,
		progress:   progress,
		pendingKey: pending.DefaultKey,
		slots:      make(map[Kind]*slot, len(providers)),
		unfinished: make(map[string]*Unfinished),
	}
	for _, opt := range opts {
		opt(c)
	}

	attached := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		kind := p.Kind()
		if _, ok := c.slots[kind]; ok {
			closeAll(attached)
			return nil, fmt.Errorf("duplicate provider: %s", kind)
		}
		err := p.Attach(Hooks{
			Progress:   c.emit,
			Unfinished: func(res *Result) { c.onUnfinished(kind, res) },
		})
		if err != nil {
			closeAll(attached)
			return nil, fmt.Errorf("failed to attach %s provider: %w", kind, err)
		}
		attached = append(attached, p)
		c.slots[kind] = &slot{provider: p}
	}
	for _, kind := range selectionOrder {
		if _, ok := c.slots[kind]; ok {
			c.order = append(c.order, kind)
		}
	}
	if len(c.order) == 0 {
		return nil, errors.New("no payment provider configured")
	}
	return c, nil
}

func closeAll(providers []Provider) {
	for _, p := range providers {
		_ = p.Close()
	}
}

func (c *Coordinator) emit(ev Event) {
	c.progress.Emit(ev)
}

// Ready reports whether at least one provider can take a purchase.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.readyLocked()
	return ok
}

// Processing reports whether a purchase is in flight on any provider.
func (c *Coordinator) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processingLocked() != ""
}

// ProviderReady reports the readiness of a single provider.
func (c *Coordinator) ProviderReady(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[kind]
	return ok && s.provider.Ready()
}

// ProviderProcessing reports whether kind has a purchase in flight.
func (c *Coordinator) ProviderProcessing(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[kind]
	return ok && s.processing
}

// Kinds lists the attached providers in selection order.
func (c *Coordinator) Kinds() []Kind {
	return append([]Kind(nil), c.order...)
}

func (c *Coordinator) readyLocked() (Kind, bool) {
	for _, kind := range c.order {
		if c.slots[kind].provider.Ready() {
			return kind, true
		}
	}
	return "", false
}

func (c *Coordinator) processingLocked() Kind {
	for _, kind := range c.order {
		if c.slots[kind].processing {
			return kind
		}
	}
	return ""
}

// Setup configures every provider that has a section in cfg. A misconfigured
// provider does not prevent the others from being set up.
func (c *Coordinator) Setup(ctx context.Context, cfg *Config) error {
	var errs []error
	for _, kind := range c.order {
		if !cfg.has(kind) {
			continue
		}
		if err := c.slots[kind].provider.Setup(ctx, cfg); err != nil {
			c.log.Warnw("provider setup failed", "provider", kind, "error", err)
			c.emit(Event{Name: EventPaymentSetupError}.With("provider", string(kind)).WithErr(err))
			errs = append(errs, fmt.Errorf("%s setup: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Start runs one purchase on the first ready provider, wallet first.
func (c *Coordinator) Start(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		c.emit(NewEvent(EventPaymentInvalidRequest, req).WithErr(err))
		return nil, err
	}
	c.emit(NewEvent(EventPaymentStart, req))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	kind, attemptID, err := c.claim(cancel)
	switch {
	case errors.Is(err, ErrNotReady):
		c.emit(NewEvent(EventPaymentNotReady, req).WithErr(err))
		return nil, err
	case errors.Is(err, ErrAlreadyProcessing):
		c.emit(NewEvent(EventPaymentAlreadyProcessing, req).WithErr(err))
		return nil, err
	case err != nil:
		return nil, err
	}

	c.savePending(ctx, kind, attemptID, req)

	res, err := c.slots[kind].provider.Start(ctx, req)
	if err == nil && res == nil {
		err = ErrCancelled
	}
	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if err != nil {
		if c.release(kind, attemptID) {
			c.clearPending(context.WithoutCancel(ctx))
		}
		if errors.Is(err, ErrCancelled) {
			c.emit(NewEvent(EventPaymentCancelled, req).With("provider", string(kind)))
			return nil, err
		}
		err = NewProviderError(kind, "start", err)
		c.emit(NewEvent(EventPaymentError, req).With("provider", string(kind)).WithErr(err))
		return nil, err
	}

	c.mu.Lock()
	if s := c.slots[kind]; s.attemptID == attemptID {
		s.result = res
		s.cancel = nil
	}
	c.mu.Unlock()

	c.emit(NewEvent(EventPaymentCompleted, req).With("provider", string(kind)).With("result", res))
	return res, nil
}

// claim picks a provider and marks it processing in one critical section.
func (c *Coordinator) claim(cancel context.CancelFunc) (Kind, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", "", ErrClosed
	}
	kind, ok := c.readyLocked()
	if !ok {
		return "", "", ErrNotReady
	}
	if c.processingLocked() != "" {
		return "", "", ErrAlreadyProcessing
	}
	s := c.slots[kind]
	s.processing = true
	s.attemptID = tool.GenerateUUIDV7()
	s.result = nil
	s.cancel = cancel
	return kind, s.attemptID, nil
}

// release clears processing unless a Reset already handed the slot to a
// newer attempt. It reports whether the attempt still owned the slot.
func (c *Coordinator) release(kind Kind, attemptID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[kind]
	if s.attemptID != attemptID {
		return false
	}
	s.processing = false
	s.attemptID = ""
	s.result = nil
	s.cancel = nil
	return true
}

// Finish acknowledges a purchase. It acts on the provider currently
// processing, or on a matching unfinished purchase, and is a no-op otherwise.
func (c *Coordinator) Finish(ctx context.Context, res *Result) error {
	c.mu.Lock()
	kind := c.processingLocked()
	if kind == "" {
		entry, ok := c.unfinished[res.Key()]
		c.mu.Unlock()
		if !ok || res == nil {
			return nil
		}
		return c.finishUnfinished(ctx, res.Key(), entry)
	}

	s := c.slots[kind]
	target := res
	if target == nil {
		target = s.result
	}
	if s.finishing || target == nil {
		c.mu.Unlock()
		return nil
	}
	s.finishing = true
	attemptID := s.attemptID
	c.mu.Unlock()

	err := s.provider.Finish(ctx, target)

	c.mu.Lock()
	s.finishing = false
	if err == nil && s.attemptID == attemptID {
		s.processing = false
		s.attemptID = ""
		s.result = nil
		s.cancel = nil
		delete(c.unfinished, target.Key())
	}
	c.mu.Unlock()

	ev := Event{Name: EventPaymentFinish, ProductID: target.ProductID}.With("provider", string(kind))
	if err != nil {
		err = NewProviderError(kind, "finish", err)
		c.emit(Event{Name: EventPaymentFinishError, ProductID: target.ProductID}.With("provider", string(kind)).WithErr(err))
		return err
	}
	c.clearPending(ctx)
	c.emit(ev)
	return nil
}

func (c *Coordinator) finishUnfinished(ctx context.Context, key string, entry *Unfinished) error {
	err := c.slots[entry.Kind].provider.Finish(ctx, entry.Result)
	if err != nil {
		err = NewProviderError(entry.Kind, "finish", err)
		c.emit(Event{Name: EventPaymentFinishError, ProductID: entry.Result.ProductID}.With("provider", string(entry.Kind)).WithErr(err))
		return err
	}

	c.mu.Lock()
	delete(c.unfinished, key)
	c.mu.Unlock()

	c.clearPending(ctx)
	c.emit(Event{Name: EventPaymentFinish, ProductID: entry.Result.ProductID}.
		With("provider", string(entry.Kind)).
		With("unfinished", true))
	return nil
}

// Reset abandons the in-flight purchase without finalizing it. With nothing
// in flight it drops unfinished markers; the vendor redelivers those later.
func (c *Coordinator) Reset(ctx context.Context) {
	c.mu.Lock()
	kind := c.processingLocked()
	var discarded int
	if kind != "" {
		s := c.slots[kind]
		if s.cancel != nil {
			s.cancel()
		}
		s.processing = false
		s.finishing = false
		s.attemptID = ""
		s.result = nil
		s.cancel = nil
	} else {
		discarded = len(c.unfinished)
		c.unfinished = make(map[string]*Unfinished)
	}
	c.mu.Unlock()

	switch {
	case kind != "":
		c.clearPending(ctx)
		c.emit(Event{Name: EventPaymentReset}.With("provider", string(kind)))
	case discarded > 0:
		c.emit(Event{Name: EventPaymentReset}.With("discarded_unfinished", discarded))
	}
}

// Unfinished lists purchases confirmed by a vendor that still need Finish or Reset.
func (c *Coordinator) Unfinished() []*Unfinished {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := lo.Values(c.unfinished)
	sort.Slice(items, func(i, j int) bool { return items[i].ReceivedAt.Before(items[j].ReceivedAt) })
	return items
}

func (c *Coordinator) onUnfinished(kind Kind, res *Result) {
	if res == nil {
		return
	}
	entry := &Unfinished{Kind: kind, Result: res, ReceivedAt: time.Now()}
	if c.store != nil {
		if record, err := c.store.Get(context.Background(), c.pendingKey); err == nil {
			entry.Pending = record
		}
	}

	c.mu.Lock()
	c.unfinished[res.Key()] = entry
	c.mu.Unlock()

	ev := Event{Name: EventPaymentUnfinished, ProductID: res.ProductID}.
		With("provider", string(kind)).
		With("purchase", res)
	if entry.Pending != nil {
		ev = ev.With("pending", entry.Pending)
	}
	c.emit(ev)
}

func (c *Coordinator) savePending(ctx context.Context, kind Kind, attemptID string, req *Request) {
	if c.store == nil {
		return
	}
	err := c.store.Set(ctx, c.pendingKey, &pending.Record{
		AttemptID:      attemptID,
		Provider:       string(kind),
		ProductID:      req.ProductID,
		Description:    req.Description,
		Amount:         req.AmountMinorUnits,
		IsSubscription: req.IsSubscription,
		StartedAt:      time.Now(),
	})
	if err != nil {
		c.log.Warnw("failed to save pending purchase", "provider", kind, "error", err)
	}
}

func (c *Coordinator) clearPending(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.Clear(ctx, c.pendingKey); err != nil {
		c.log.Warnw("failed to clear pending purchase", "error", err)
	}
}

// Close removes every vendor listener. Start fails afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, kind := range c.order {
		if err := c.slots[kind].provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
