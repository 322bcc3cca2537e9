// Package relay bridges the purchase providers to the native shell running on
// the device. The service queues SDK calls; the shell long-polls them, runs
// them against the real store or wallet SDK and posts the replies and any
// asynchronous store events back.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/pkg/tool"
)

const (
	defaultCallTimeout = 30 * time.Second
	queueSize          = 64
)

var (
	ErrUnknownCall  = errors.New("unknown or expired relay call")
	ErrCallTimeout  = errors.New("device did not answer in time")
	ErrUnknownEvent = errors.New("unknown device event")
)

// Call is one SDK invocation waiting for the device.
type Call struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Reply is the device answer to a Call.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReplyError     `json:"error,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	EventPurchaseUpdated = "purchase_updated"
	EventPurchaseError   = "purchase_error"
)

// DeviceEvent is an asynchronous store notification pushed by the device.
type DeviceEvent struct {
	Type     string             `json:"type" binding:"required"`
	Purchase *iap.Purchase      `json:"purchase,omitempty"`
	Error    *iap.PurchaseError `json:"error,omitempty"`
}

type Config struct {
	CallTimeout time.Duration
	// Platform is the device OS reported to the wallet provider.
	Platform string
}

type Bridge struct {
	log         *zap.SugaredLogger
	callTimeout time.Duration
	platform    string
	queue       chan *Call

	mu        sync.Mutex
	pending   map[string]chan Reply
	listeners map[int]iap.Listener
	nextID    int
}

func NewBridge(log *zap.SugaredLogger, cfg Config) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Bridge{
		log:         log,
		callTimeout: cfg.CallTimeout,
		platform:    cfg.Platform,
		queue:       make(chan *Call, queueSize),
		pending:     map[string]chan Reply{},
		listeners:   map[int]iap.Listener{},
	}
}

// Next blocks until a call is queued or ctx is done. Calls whose caller
// already gave up are dropped rather than handed to the device.
func (b *Bridge) Next(ctx context.Context) (*Call, error) {
	for {
		select {
		case call := <-b.queue:
			b.mu.Lock()
			_, live := b.pending[call.ID]
			b.mu.Unlock()
			if live {
				return call, nil
			}
			b.log.Debugw("relay call dropped, caller gone", "call_id", call.ID, "method", call.Method)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Resolve hands the device reply to the waiting call.
func (b *Bridge) Resolve(id string, reply Reply) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		return ErrUnknownCall
	}
	ch <- reply
	return nil
}

// Dispatch delivers a store event to every registered listener.
func (b *Bridge) Dispatch(ev *DeviceEvent) error {
	b.mu.Lock()
	listeners := make([]iap.Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	switch ev.Type {
	case EventPurchaseUpdated:
		if ev.Purchase == nil {
			return errors.New("purchase_updated without purchase")
		}
		for _, l := range listeners {
			l.OnPurchaseUpdated(ev.Purchase)
		}
	case EventPurchaseError:
		if ev.Error == nil {
			return errors.New("purchase_error without error")
		}
		for _, l := range listeners {
			l.OnPurchaseError(ev.Error)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

// PendingCalls reports calls waiting for a device reply.
func (b *Bridge) PendingCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) addListener(l iap.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// invoke queues method and decodes the reply into out. Interactive calls wait
// for the user as long as ctx allows; the others are bounded by the call timeout.
func (b *Bridge) invoke(ctx context.Context, method string, args, out any, interactive bool) error {
	if !interactive {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	call := &Call{ID: tool.GenerateUUIDV7(), Method: method, CreatedAt: time.Now()}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode %s args: %w", method, err)
		}
		call.Args = raw
	}

	ch := make(chan Reply, 1)
	b.mu.Lock()
	b.pending[call.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, call.ID)
		b.mu.Unlock()
	}()

	select {
	case b.queue <- call:
	case <-ctx.Done():
		return b.ctxErr(ctx, method)
	}
	b.log.Debugw("relay call queued", "call_id", call.ID, "method", method)

	var reply Reply
	select {
	case reply = <-ch:
	case <-ctx.Done():
		return b.ctxErr(ctx, method)
	}

	if reply.Error != nil {
		return reply.Error
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (b *Bridge) ctxErr(ctx context.Context, method string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		b.log.Warnw("relay call timed out", "method", method)
		return fmt.Errorf("%w: %s", ErrCallTimeout, method)
	}
	return ctx.Err()
}
