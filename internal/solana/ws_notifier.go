package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket slot notifier.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the default notifier configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// SlotNotifier subscribes to slotNotification over WebSocket and exposes
// new slot heights on a channel. It is a best-effort accelerator for the
// live-tail loop: polling remains the source of truth, so notifications
// may be dropped when the consumer lags and missed slots are harmless.
type SlotNotifier struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	slots chan int64
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewSlotNotifier creates a slot notifier for the given WebSocket endpoint.
func NewSlotNotifier(endpoint string, config *WSConfig, logger *log.Logger) *SlotNotifier {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SlotNotifier{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		slots:    make(chan int64, 64),
		done:     make(chan struct{}),
	}
}

// Slots returns the channel of observed slot heights.
func (n *SlotNotifier) Slots() <-chan int64 {
	return n.slots
}

// Start begins the subscribe/read loop. It returns immediately; the loop
// reconnects with exponential backoff until Close is called or the
// context is cancelled.
func (n *SlotNotifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		delay := n.config.ReconnectDelay
		for {
			if err := n.runOnce(ctx); err != nil {
				n.logger.Printf("[slotnotifier] connection lost: %v", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-n.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > n.config.MaxReconnectDelay {
				delay = n.config.MaxReconnectDelay
			}
		}
	}()
}

// Close stops the notifier and waits for the read loop to exit.
func (n *SlotNotifier) Close() {
	n.once.Do(func() { close(n.done) })
	n.wg.Wait()
}

// runOnce dials, subscribes, and reads notifications until the connection
// drops or shutdown is requested.
func (n *SlotNotifier) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, n.config.WriteTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, n.endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", n.endpoint, err)
	}
	defer conn.Close()

	// Drop the connection promptly on shutdown so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-n.done:
		case <-stop:
		}
		conn.Close()
	}()

	sub := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "slotSubscribe"}
	conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(n.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-n.done:
				return nil
			default:
			}
			return fmt.Errorf("read: %w", err)
		}

		var note slotNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Method != "slotNotification" {
			continue // subscription confirmation or unrelated frame
		}

		select {
		case n.slots <- note.Params.Result.Slot:
		default:
			// Consumer is behind; the poll loop will catch up anyway.
		}
	}
}

// slotNotification is the wire shape of a slotSubscribe notification.
type slotNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Parent int64 `json:"parent"`
			Root   int64 `json:"root"`
			Slot   int64 `json:"slot"`
		} `json:"result"`
		Subscription int64 `json:"subscription"`
	} `json:"params"`
}
