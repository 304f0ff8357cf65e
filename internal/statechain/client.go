// Package statechain is a JSON-RPC client of the state chain node over a websocket.
//
// It submits ceremony outcomes and witness attestations as extrinsics, and
// streams the ceremony requests and external chain observations relayed by the node.
package statechain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/witness"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultCallTimeout bounds a single RPC round trip.
	DefaultCallTimeout = 10 * time.Second

	methodSubmit    = "author_submitExtrinsic"
	methodSubscribe = "engine_subscribeEvents"
	methodEvent     = "engine_event"

	eventBuffer = 64
)

// ErrClosed is returned for calls on a closed connection.
var ErrClosed = errors.New("statechain: connection closed")

// RPCError is an error response of the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("statechain: rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *notification   `json:"params"`
}

type notification struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// extrinsic is the single parameter of author_submitExtrinsic.
type extrinsic struct {
	Origin party.AccountID `json:"origin"`
	Call   string          `json:"call"`
	Args   []interface{}   `json:"args"`
}

// Client is connected to a single node. Run must be running for calls to complete.
type Client struct {
	conn    *websocket.Conn
	self    party.AccountID
	timeout time.Duration

	writeMtx sync.Mutex
	nextID   atomic.Uint64

	mtx     sync.Mutex
	pending map[uint64]chan *response
	closed  bool

	events       chan witness.Event
	observations chan witness.Observation
	log          zerolog.Logger
}

// Dial connects to the websocket endpoint of a node. Extrinsics are submitted on behalf of self.
func Dial(ctx context.Context, endpoint string, self party.AccountID, logger zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "statechain: dial %s", endpoint)
	}
	return &Client{
		conn:         conn,
		self:         self,
		timeout:      DefaultCallTimeout,
		pending:      make(map[uint64]chan *response),
		events:       make(chan witness.Event, eventBuffer),
		observations: make(chan witness.Observation, eventBuffer),
		log:          logger.With().Str("component", "statechain").Str("endpoint", endpoint).Logger(),
	}, nil
}

// Events returns the stream of ceremony requests. It is closed when Run returns.
func (c *Client) Events() <-chan witness.Event { return c.events }

// Observations returns the stream of external chain observations. It is closed when Run returns.
func (c *Client) Observations() <-chan witness.Observation { return c.observations }

// Run reads responses and notifications until ctx is done or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	defer close(c.observations)
	defer c.shutdown()

	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	for {
		var msg response
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "statechain: read")
		}
		switch {
		case msg.ID != nil:
			c.resolve(*msg.ID, &msg)
		case msg.Method == methodEvent && msg.Params != nil:
			if err := c.dispatch(ctx, msg.Params.Result); err != nil {
				c.log.Warn().Err(err).Msg("dropping undecodable event")
			}
		default:
			c.log.Debug().Str("method", msg.Method).Msg("ignoring unexpected message")
		}
	}
}

func (c *Client) shutdown() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) resolve(id uint64, msg *response) {
	c.mtx.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mtx.Unlock()
	if !ok {
		c.log.Debug().Uint64("id", id).Msg("response to unknown request")
		return
	}
	ch <- msg
}

func (c *Client) dispatch(ctx context.Context, raw json.RawMessage) error {
	ev, obs, err := decodeEvent(raw)
	if err != nil {
		return err
	}
	switch {
	case ev != nil:
		select {
		case c.events <- ev:
		case <-ctx.Done():
		}
	case obs != nil:
		select {
		case c.observations <- obs:
		case <-ctx.Done():
		}
	}
	return nil
}

// Call sends a request and decodes its result into result, unless result is nil.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	id := c.nextID.Add(1)
	ch := make(chan *response, 1)
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mtx.Unlock()

	if params == nil {
		params = []interface{}{}
	}
	c.writeMtx.Lock()
	err := c.conn.WriteJSON(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMtx.Unlock()
	if err != nil {
		c.forget(id)
		return errors.Wrapf(err, "statechain: send %s", method)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case msg, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if msg.Error != nil {
			return errors.Wrap(msg.Error, method)
		}
		if result == nil {
			return nil
		}
		return errors.Wrapf(json.Unmarshal(msg.Result, result), "statechain: decode %s result", method)
	case <-ctx.Done():
		c.forget(id)
		return errors.Wrapf(ctx.Err(), "statechain: %s", method)
	}
}

func (c *Client) forget(id uint64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	delete(c.pending, id)
}

// Subscribe asks the node to stream ceremony events and observations.
func (c *Client) Subscribe(ctx context.Context) (string, error) {
	var subscription string
	if err := c.Call(ctx, methodSubscribe, nil, &subscription); err != nil {
		return "", err
	}
	c.log.Info().Str("subscription", subscription).Msg("subscribed to events")
	return subscription, nil
}

// SubmitExtrinsic implements witness.Submitter.
func (c *Client) SubmitExtrinsic(ctx context.Context, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	return c.Call(ctx, methodSubmit, []interface{}{&extrinsic{Origin: c.self, Call: method, Args: params}}, nil)
}
