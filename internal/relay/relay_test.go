package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const walletAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// fakeRelay routes irn_publish to the other subscribers of a topic and
// replays stored messages to late subscribers.
type fakeRelay struct {
	up      websocket.Upgrader
	mu      sync.Mutex
	subs    map[string][]*relayConn
	history map[string][]subscriptionData
}

type relayConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *relayConn) send(m rpcMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(m)
}

func (c *relayConn) push(d subscriptionData) {
	params, _ := json.Marshal(subscriptionParams{ID: uuid.NewString(), Data: d})
	c.send(rpcMessage{ID: nextID(), JSONRPC: "2.0", Method: methodSubscription, Params: params})
}

func newFakeRelay(t *testing.T) string {
	t.Helper()
	r := &fakeRelay{subs: map[string][]*relayConn{}, history: map[string][]subscriptionData{}}
	srv := httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (r *fakeRelay) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.up.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &relayConn{ws: ws}
	defer func() {
		r.mu.Lock()
		for topic, conns := range r.subs {
			kept := conns[:0]
			for _, x := range conns {
				if x != c {
					kept = append(kept, x)
				}
			}
			r.subs[topic] = kept
		}
		r.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var m rpcMessage
		if err := ws.ReadJSON(&m); err != nil {
			return
		}
		switch m.Method {
		case methodSubscribe:
			var p subscribeParams
			_ = json.Unmarshal(m.Params, &p)
			r.mu.Lock()
			r.subs[p.Topic] = append(r.subs[p.Topic], c)
			backlog := append([]subscriptionData(nil), r.history[p.Topic]...)
			r.mu.Unlock()
			c.send(rpcMessage{ID: m.ID, JSONRPC: "2.0", Result: json.RawMessage(`"` + uuid.NewString() + `"`)})
			for _, d := range backlog {
				c.push(d)
			}
		case methodPublish:
			var p publishParams
			_ = json.Unmarshal(m.Params, &p)
			d := subscriptionData{Topic: p.Topic, Message: p.Message, PublishedAt: time.Now().UnixMilli(), Tag: p.Tag}
			r.mu.Lock()
			r.history[p.Topic] = append(r.history[p.Topic], d)
			var peers []*relayConn
			for _, x := range r.subs[p.Topic] {
				if x != c {
					peers = append(peers, x)
				}
			}
			r.mu.Unlock()
			c.send(rpcMessage{ID: m.ID, JSONRPC: "2.0", Result: json.RawMessage("true")})
			for _, x := range peers {
				x.push(d)
			}
		}
	}
}

// joinAsWallet scans the pairing URI like a mobile wallet would.
func joinAsWallet(t *testing.T, ctx context.Context, relayURL, uri string) *transport {
	t.Helper()
	u, err := ParseURI(uri)
	require.NoError(t, err)
	tr, err := dial(ctx, nil, relayURL, u.Topic, u.SymKey)
	require.NoError(t, err)
	t.Cleanup(tr.close)
	return tr
}

func nextRequest(t *testing.T, tr *transport) rpcMessage {
	t.Helper()
	select {
	case m := <-tr.requests:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request")
		return rpcMessage{}
	}
}

func pairAndApprove(t *testing.T, ctx context.Context) (*Session, *transport) {
	t.Helper()
	relayURL := newFakeRelay(t)
	c := NewClient(Config{URL: relayURL, ProjectID: "test", Metadata: Metadata{Name: "farm goods"}})

	p, err := c.Pair(ctx, 42161)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.URI.String(), "wc:"+p.URI.Topic+"@2?"))

	wallet := joinAsWallet(t, ctx, relayURL, p.URI.String())
	prop := nextRequest(t, wallet)
	require.Equal(t, methodSessionPropose, prop.Method)

	var proposal sessionProposal
	require.NoError(t, json.Unmarshal(prop.Params, &proposal))
	assert.Equal(t, []string{"eip155:42161"}, proposal.RequiredNamespaces["eip155"].Chains)
	assert.Equal(t, "farm goods", proposal.Proposer.Name)

	require.NoError(t, wallet.respond(ctx, prop.ID, proposalResult{
		Accounts: []string{"eip155:42161:" + strings.ToLower(walletAddr)},
		Wallet:   Metadata{Name: "test wallet"},
	}, tagSessionProposeResult))

	s, err := p.Wait(ctx)
	require.NoError(t, err)
	return s, wallet
}

func TestURIRoundTrip(t *testing.T) {
	key, err := newSymKey()
	require.NoError(t, err)
	u := URI{Topic: topicFor(key), Version: 2, RelayProtocol: "irn", SymKey: key, ExpiryTimestamp: 1700000000}

	got, err := ParseURI(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, got)

	for _, bad := range []string{
		"",
		"http://example.com",
		"wc:topic@1?relay-protocol=irn&symKey=00",
		"wc:@2?symKey=00",
		"wc:topic@2?relay-protocol=irn&symKey=zz",
	} {
		_, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestSealOpen(t *testing.T) {
	key, err := newSymKey()
	require.NoError(t, err)
	other, err := newSymKey()
	require.NoError(t, err)

	msg, err := seal(key, []byte(`{"hello":"wallet"}`))
	require.NoError(t, err)

	plain, err := open(key, msg)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"wallet"}`, string(plain))

	_, err = open(other, msg)
	assert.ErrorIs(t, err, ErrBadEnvelope)
	_, err = open(key, "not base64!")
	assert.ErrorIs(t, err, ErrBadEnvelope)
}

func TestSessionForwardsRequests(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, wallet := pairAndApprove(t, ctx)
	assert.Equal(t, []string{walletAddr}, s.Accounts())
	assert.Equal(t, uint64(42161), s.ChainID())

	var chainID string
	require.NoError(t, s.Request(ctx, eip1193.MethodChainID, nil, &chainID))
	assert.Equal(t, "0xa4b1", chainID)

	go func() {
		for i := 0; i < 2; i++ {
			m := <-wallet.requests
			var req sessionRequestParams
			_ = json.Unmarshal(m.Params, &req)
			switch req.Request.Method {
			case eip1193.MethodSwitchChain:
				_ = wallet.respond(ctx, m.ID, nil, tagSessionRequestResult)
			case eip1193.MethodSendTransaction:
				_ = wallet.respond(ctx, m.ID, "0xabc", tagSessionRequestResult)
			}
		}
	}()

	require.NoError(t, s.Request(ctx, eip1193.MethodSwitchChain, []any{eip1193.SwitchChainParams{ChainID: "0x3e158e4"}}, nil))
	assert.Equal(t, uint64(65100004), s.ChainID())

	var hash string
	require.NoError(t, s.Request(ctx, eip1193.MethodSendTransaction, []any{map[string]string{"to": walletAddr}}, &hash))
	assert.Equal(t, "0xabc", hash)

	require.NoError(t, s.Close(ctx))
	del := nextRequest(t, wallet)
	assert.Equal(t, methodSessionDelete, del.Method)

	err := s.Request(ctx, eip1193.MethodSendTransaction, nil, nil)
	code, ok := eip1193.Code(err)
	require.True(t, ok)
	assert.Equal(t, eip1193.CodeDisconnected, code)
}

func TestSessionRequestRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, wallet := pairAndApprove(t, ctx)
	defer func() { _ = s.Close(ctx) }()

	go func() {
		m := <-wallet.requests
		_ = wallet.respondError(ctx, m.ID, codeUserRejected, "User rejected.", tagSessionRequestResult)
	}()

	err := s.Request(ctx, eip1193.MethodSendTransaction, []any{map[string]string{}}, nil)
	assert.True(t, eip1193.IsUserRejected(err))
}

func TestWalletEventsAndDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, wallet := pairAndApprove(t, ctx)

	var ev sessionEventParams
	ev.Event.Name = "chainChanged"
	ev.Event.Data = json.RawMessage(`"0x3e158e4"`)
	ev.ChainID = "eip155:65100004"
	_, err := wallet.request(ctx, methodSessionEvent, ev, tagSessionEvent)
	require.NoError(t, err)
	assert.Equal(t, uint64(65100004), s.ChainID())

	_, err = wallet.request(ctx, methodSessionDelete, sessionDeleteParams{Code: codeUserDisconnected, Message: "bye"}, tagSessionDelete)
	require.NoError(t, err)

	require.Eventually(t, s.isClosed, 5*time.Second, 10*time.Millisecond)
	err = s.Request(ctx, eip1193.MethodSendTransaction, nil, nil)
	code, ok := eip1193.Code(err)
	require.True(t, ok)
	assert.Equal(t, eip1193.CodeDisconnected, code)
	require.NoError(t, s.Close(ctx))
}

func TestPairRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relayURL := newFakeRelay(t)
	p, err := NewClient(Config{URL: relayURL}).Pair(ctx, 65100004)
	require.NoError(t, err)

	wallet := joinAsWallet(t, ctx, relayURL, p.URI.String())
	prop := nextRequest(t, wallet)
	require.NoError(t, wallet.respondError(ctx, prop.ID, codeUserRejected, "User rejected.", tagSessionProposeResult))

	_, err = p.Wait(ctx)
	assert.True(t, eip1193.IsUserRejected(err))
}

func TestWaitHonoursContext(t *testing.T) {
	relayURL := newFakeRelay(t)
	p, err := NewClient(Config{URL: relayURL}).Pair(context.Background(), 42161)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
