package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/kode4food/argyll/worker/internal/engine"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

type (
	// Handler executes operations received from the controller
	Handler interface {
		Dispatch(
			ctx context.Context, op api.OperationType, input any,
		) *api.OperationResult
	}

	// Channel is the worker's websocket link to the controller. Operation
	// messages are dispatched concurrently and answered with a result
	// message carrying the same ID. Progress updates flow the other way
	// without being asked for
	Channel struct {
		url    string
		token  string
		dialer *websocket.Dialer

		mu   sync.Mutex
		conn *websocket.Conn
		wg   sync.WaitGroup
	}

	// MessageType discriminates the messages exchanged with the controller
	MessageType string

	// Message is the envelope of every frame on the channel
	Message struct {
		Type      MessageType          `json:"type"`
		ID        string               `json:"id,omitempty"`
		Operation api.OperationType    `json:"operation,omitempty"`
		Input     any                  `json:"input,omitempty"`
		Result    *api.OperationResult `json:"result,omitempty"`
		Progress  *api.ProgressUpdate  `json:"progress,omitempty"`
	}
)

const (
	MessageOperation MessageType = "OPERATION"
	MessageResult    MessageType = "RESULT"
	MessageProgress  MessageType = "PROGRESS"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 32 * 1024 * 1024
	wsBufferSize       = 1024
	incomingBufferSize = 16
	reconnectInitial   = 100 * time.Millisecond
	reconnectMax       = 30 * time.Second
)

var ErrNotConnected = errors.New("controller channel not connected")

var _ engine.ProgressSink = (*Channel)(nil)

// NewChannel creates a channel that dials url, presenting token as a
// bearer credential
func NewChannel(url, token string) *Channel {
	return &Channel{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: writeWait,
			ReadBufferSize:   wsBufferSize,
			WriteBufferSize:  wsBufferSize,
		},
	}
}

// Run connects to the controller and serves operations with h until ctx is
// done, reconnecting with exponential backoff whenever the link drops
func (c *Channel) Run(ctx context.Context, h Handler) error {
	defer c.wg.Wait()
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}
		slog.Info("Controller connected",
			slog.String("url", c.url))

		err = c.serve(ctx, conn, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Controller connection lost",
			log.Error(err))
	}
}

// SendProgress pushes a progress update to the controller
func (c *Channel) SendProgress(
	_ context.Context, update *api.ProgressUpdate,
) error {
	return c.write(&Message{
		Type:     MessageProgress,
		Progress: update,
	})
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitial
	b.MaxInterval = reconnectMax
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		var resp *http.Response
		conn, resp, err = c.dialer.DialContext(ctx, c.url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		slog.Warn("Controller dial failed",
			slog.String("url", c.url),
			slog.Duration("retry_in", wait),
			log.Error(err))
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Channel) serve(
	ctx context.Context, conn *websocket.Conn, h Handler,
) error {
	defer c.disconnect(conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readMessages(conn, incoming, errs, done)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return <-errs
			}
			c.handleMessage(ctx, message, h)

		case <-ticker.C:
			if err := c.sendPing(conn); err != nil {
				return err
			}

		case <-ctx.Done():
			c.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(
					websocket.CloseNormalClosure, "",
				),
			)
			c.mu.Unlock()
			return ctx.Err()
		}
	}
}

// readMessages feeds incoming until the connection fails or done is closed.
// incoming is closed on return
func readMessages(
	conn *websocket.Conn, incoming chan<- []byte, errs chan<- error,
	done <-chan struct{},
) {
	defer close(incoming)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		select {
		case incoming <- message:
		case <-done:
			return
		}
	}
}

func (c *Channel) handleMessage(ctx context.Context, data []byte, h Handler) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Error("Failed to parse controller message",
			log.Error(err))
		return
	}

	if msg.Type != MessageOperation {
		slog.Debug("Ignoring controller message",
			slog.String("type", string(msg.Type)))
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := h.Dispatch(ctx, msg.Operation, msg.Input)
		err := c.write(&Message{
			Type:   MessageResult,
			ID:     msg.ID,
			Result: res,
		})
		if err != nil {
			slog.Error("Failed to send operation result",
				log.Operation(msg.Operation),
				slog.String("id", msg.ID),
				log.Error(err))
		}
	}()
}

func (c *Channel) write(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Channel) sendPing(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Channel) disconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}
