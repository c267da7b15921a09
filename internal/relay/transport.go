package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

var ErrClosed = errors.New("relay: connection closed")

const writeTimeout = 10 * time.Second

// transport is one websocket to the relay, subscribed to a single topic whose
// messages are sealed with key.
type transport struct {
	ws    *websocket.Conn
	topic string
	key   []byte

	writeMu sync.Mutex

	mu      sync.Mutex
	acks    map[int64]chan rpcMessage // relay-level responses
	waiters map[int64]chan rpcMessage // peer responses
	err     error

	// peer-initiated requests
	requests chan rpcMessage

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func dial(ctx context.Context, dialer *websocket.Dialer, endpoint, topic string, key []byte) (*transport, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial relay")
	}
	t := &transport{
		ws:       ws,
		topic:    topic,
		key:      key,
		acks:     map[int64]chan rpcMessage{},
		waiters:  map[int64]chan rpcMessage{},
		requests: make(chan rpcMessage, 16),
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()

	var subID string
	if err := t.call(ctx, methodSubscribe, subscribeParams{Topic: topic}, &subID); err != nil {
		t.close()
		return nil, errors.Wrap(err, "subscribe")
	}
	return t, nil
}

func (t *transport) readLoop() {
	defer t.wg.Done()
	for {
		var m rpcMessage
		if err := t.ws.ReadJSON(&m); err != nil {
			t.shutdown(err)
			return
		}
		switch {
		case m.Method == methodSubscription:
			_ = t.write(rpcMessage{ID: m.ID, JSONRPC: "2.0", Result: json.RawMessage("true")})
			t.deliver(m.Params)
		case m.Method != "":
			// relay-initiated calls other than subscriptions are not used
		default:
			t.resolve(t.acks, m)
		}
	}
}

func (t *transport) deliver(params json.RawMessage) {
	var sp subscriptionParams
	if err := json.Unmarshal(params, &sp); err != nil || sp.Data.Topic != t.topic {
		return
	}
	plain, err := open(t.key, sp.Data.Message)
	if err != nil {
		log.Warn("relay: dropping undecryptable message", "topic", sp.Data.Topic, "error", err)
		return
	}
	var inner rpcMessage
	if err := json.Unmarshal(plain, &inner); err != nil {
		return
	}
	if inner.Method == "" {
		t.resolve(t.waiters, inner)
		return
	}
	select {
	case t.requests <- inner:
	default:
		log.Warn("relay: request queue full, dropping", "method", inner.Method)
	}
}

func (t *transport) resolve(m map[int64]chan rpcMessage, msg rpcMessage) {
	t.mu.Lock()
	ch := m[msg.ID]
	delete(m, msg.ID)
	t.mu.Unlock()
	if ch != nil {
		ch <- msg
	}
}

func (t *transport) register(m map[int64]chan rpcMessage, id int64) chan rpcMessage {
	ch := make(chan rpcMessage, 1)
	t.mu.Lock()
	m[id] = ch
	t.mu.Unlock()
	return ch
}

func (t *transport) forget(m map[int64]chan rpcMessage, id int64) {
	t.mu.Lock()
	delete(m, id)
	t.mu.Unlock()
}

func (t *transport) write(m rpcMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.ws.WriteJSON(m); err != nil {
		return errors.Wrap(err, "relay write")
	}
	return nil
}

// call performs a relay-level JSON-RPC call.
func (t *transport) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return errors.Wrapf(err, "encode %s", method)
	}
	id := nextID()
	ch := t.register(t.acks, id)
	defer t.forget(t.acks, id)

	if err := t.write(rpcMessage{ID: id, JSONRPC: "2.0", Method: method, Params: raw}); err != nil {
		return err
	}
	select {
	case m := <-ch:
		if m.Error != nil {
			return errors.Wrapf(m.Error, "%s", method)
		}
		if out != nil && len(m.Result) > 0 {
			return json.Unmarshal(m.Result, out)
		}
		return nil
	case <-t.done:
		return t.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) publish(ctx context.Context, m rpcMessage, tag int) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	sealed, err := seal(t.key, plain)
	if err != nil {
		return err
	}
	return t.call(ctx, methodPublish, publishParams{
		Topic:   t.topic,
		Message: sealed,
		TTL:     defaultTTL,
		Tag:     tag,
		Prompt:  m.Method != "",
	}, nil)
}

// send publishes a request to the peer and returns the channel its response arrives on.
func (t *transport) send(ctx context.Context, method string, params any, tag int) (int64, chan rpcMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "encode %s", method)
	}
	id := nextID()
	ch := t.register(t.waiters, id)
	if err := t.publish(ctx, rpcMessage{ID: id, JSONRPC: "2.0", Method: method, Params: raw}, tag); err != nil {
		t.forget(t.waiters, id)
		return 0, nil, err
	}
	return id, ch, nil
}

func (t *transport) await(ctx context.Context, id int64, ch chan rpcMessage) (json.RawMessage, error) {
	defer t.forget(t.waiters, id)
	select {
	case m := <-ch:
		if m.Error != nil {
			return nil, walletError(m.Error)
		}
		return m.Result, nil
	case <-t.done:
		return nil, t.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *transport) request(ctx context.Context, method string, params any, tag int) (json.RawMessage, error) {
	id, ch, err := t.send(ctx, method, params, tag)
	if err != nil {
		return nil, err
	}
	return t.await(ctx, id, ch)
}

func (t *transport) respond(ctx context.Context, id int64, result any, tag int) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	return t.publish(ctx, rpcMessage{ID: id, JSONRPC: "2.0", Result: raw}, tag)
}

func (t *transport) respondError(ctx context.Context, id int64, code int, msg string, tag int) error {
	return t.publish(ctx, rpcMessage{ID: id, JSONRPC: "2.0", Error: eip1193.NewError(code, msg)}, tag)
}

func (t *transport) shutdown(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *transport) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil || websocket.IsCloseError(t.err, websocket.CloseNormalClosure) {
		return ErrClosed
	}
	return errors.Wrap(ErrClosed, t.err.Error())
}

// closeConn closes the socket without waiting; the read loop exits on its own.
func (t *transport) closeConn() {
	t.writeMu.Lock()
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	_ = t.ws.Close()
}

// close closes the socket and waits for the transport goroutines.
func (t *transport) close() {
	t.closeConn()
	t.wg.Wait()
}
