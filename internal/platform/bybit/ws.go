package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkoval/tradepilot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pingPeriod sends the Bybit application-level ping at this interval.
	// The server drops connections idle for more than 30 seconds.
	pingPeriod = 20 * time.Second

	// readWait bounds how long a read may block between server frames.
	readWait = 60 * time.Second
)

// TickerHandler is called for each ticker push from the public stream.
type TickerHandler func(domain.MarketData)

// WSClient is a WebSocket client for the Bybit v5 public ticker stream. It
// manages the connection lifecycle, subscriptions, and dispatches ticker
// updates to the registered handler.
//
// Delta frames omit unchanged fields, so the client keeps the last snapshot
// per symbol and merges deltas into it before dispatching.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu      sync.Mutex
	closed  bool
	symbols []string
	last    map[string]tickerEntry

	handler   TickerHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given stream URL,
// e.g. "wss://stream.bybit.com/v5/public/linear".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		last:  make(map[string]tickerEntry),
		done:  make(chan struct{}),
	}
}

// OnTicker registers the handler invoked for every ticker update.
func (w *WSClient) OnTicker(h TickerHandler) {
	w.handlerMu.Lock()
	w.handler = h
	w.handlerMu.Unlock()
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously subscribed symbols are re-subscribed after a reconnect.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("bybit/ws: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit/ws: connect: %w", err)
	}
	w.conn = conn

	go w.readLoop()
	go w.pingLoop()

	if len(w.symbols) > 0 {
		if err := w.sendSubscribe(w.symbols); err != nil {
			return fmt.Errorf("bybit/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to ticker updates for the given symbols.
func (w *WSClient) Subscribe(ctx context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("bybit/ws: not connected")
	}

	if err := w.sendSubscribe(symbols); err != nil {
		return err
	}
	w.symbols = append(w.symbols, symbols...)
	return nil
}

func (w *WSClient) sendSubscribe(symbols []string) error {
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	cmd := map[string]any{"op": "subscribe", "args": args}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("bybit/ws: subscribe: %w", err)
	}
	return nil
}

func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsTickerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Topic == "" {
			continue
		}

		w.mu.Lock()
		merged := mergeTicker(w.last[msg.Data.Symbol], msg.Data)
		w.last[msg.Data.Symbol] = merged
		w.mu.Unlock()

		w.handlerMu.RLock()
		h := w.handler
		w.handlerMu.RUnlock()
		if h != nil {
			h(tickerToMarketData(merged, time.UnixMilli(msg.Ts)))
		}
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					w.mu.Unlock()
					return
				}
			}
			w.mu.Unlock()
		}
	}
}

// Close shuts down the connection and stops the background loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// mergeTicker overlays the non-empty fields of a delta frame on the previous
// snapshot.
func mergeTicker(prev, next tickerEntry) tickerEntry {
	if next.Symbol == "" {
		next.Symbol = prev.Symbol
	}
	if next.LastPrice == "" {
		next.LastPrice = prev.LastPrice
	}
	if next.MarkPrice == "" {
		next.MarkPrice = prev.MarkPrice
	}
	if next.Price24hPcnt == "" {
		next.Price24hPcnt = prev.Price24hPcnt
	}
	if next.HighPrice24h == "" {
		next.HighPrice24h = prev.HighPrice24h
	}
	if next.LowPrice24h == "" {
		next.LowPrice24h = prev.LowPrice24h
	}
	if next.Volume24h == "" {
		next.Volume24h = prev.Volume24h
	}
	if next.Turnover24h == "" {
		next.Turnover24h = prev.Turnover24h
	}
	if next.FundingRate == "" {
		next.FundingRate = prev.FundingRate
	}
	if next.OpenInterest == "" {
		next.OpenInterest = prev.OpenInterest
	}
	return next
}
