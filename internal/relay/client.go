// Package relay pairs with a mobile wallet through a WalletConnect-style relay
// server and forwards provider requests to it once the wallet approves.
package relay

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

const (
	DefaultURL = "wss://relay.walletconnect.com"

	pairingExpiry = 5 * time.Minute
)

// Modal shows a pairing URI to the user until the wallet answers.
type Modal interface {
	Open(ctx context.Context, uri string) error
	Close()
}

type Config struct {
	URL       string
	ProjectID string
	Metadata  Metadata
	Dialer    *websocket.Dialer
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	return &Client{cfg: cfg}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", errors.Wrapf(err, "relay url %q", c.cfg.URL)
	}
	if c.cfg.ProjectID != "" {
		q := u.Query()
		q.Set("projectId", c.cfg.ProjectID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Pairing is an outstanding session proposal.
type Pairing struct {
	URI     URI
	chainID uint64

	tr         *transport
	proposalID int64
	response   chan rpcMessage
}

// Pair opens a relay connection, subscribes to a fresh pairing topic and
// publishes a session proposal for chainID.
func (c *Client) Pair(ctx context.Context, chainID uint64) (*Pairing, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	key, err := newSymKey()
	if err != nil {
		return nil, err
	}
	topic := topicFor(key)

	tr, err := dial(ctx, c.cfg.Dialer, endpoint, topic, key)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().Add(pairingExpiry).Unix()
	proposal := sessionProposal{
		RequiredNamespaces: map[string]namespace{
			"eip155": {
				Chains:  []string{caip2(chainID)},
				Methods: sessionMethods,
				Events:  sessionEvents,
			},
		},
		Proposer:        c.cfg.Metadata,
		ExpiryTimestamp: expiry,
	}
	id, ch, err := tr.send(ctx, methodSessionPropose, proposal, tagSessionPropose)
	if err != nil {
		tr.close()
		return nil, errors.Wrap(err, "publish session proposal")
	}

	p := &Pairing{
		URI: URI{
			Topic:           topic,
			Version:         uriVersion,
			RelayProtocol:   defaultRelayProtocol,
			SymKey:          key,
			ExpiryTimestamp: expiry,
		},
		chainID:    chainID,
		tr:         tr,
		proposalID: id,
		response:   ch,
	}
	log.Info("relay pairing created", "topic", topic, "chain", caip2(chainID))
	return p, nil
}

// Wait blocks until the wallet approves or rejects the proposal, or ctx ends.
// On any error the pairing is closed.
func (p *Pairing) Wait(ctx context.Context) (*Session, error) {
	raw, err := p.tr.await(ctx, p.proposalID, p.response)
	if err != nil {
		p.tr.close()
		return nil, err
	}

	var res proposalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		p.tr.close()
		return nil, errors.Wrap(err, "decode proposal result")
	}
	s, err := newSession(p.tr, res, p.chainID)
	if err != nil {
		p.tr.close()
		return nil, err
	}
	log.Info("relay session approved", "session", s.ID, "wallet", res.Wallet.Name, "accounts", len(s.accounts))
	return s, nil
}

// Close abandons the pairing.
func (p *Pairing) Close() {
	p.tr.close()
}

// Session is an approved wallet session. It implements eip1193.Provider.
type Session struct {
	ID   string
	Peer Metadata

	tr *transport

	mu       sync.RWMutex
	accounts []string
	chainID  uint64
	closed   bool
}

func newSession(tr *transport, res proposalResult, proposedChain uint64) (*Session, error) {
	if len(res.Accounts) == 0 {
		return nil, errors.New("wallet approved without accounts")
	}
	s := &Session{
		ID:      uuid.NewString(),
		Peer:    res.Wallet,
		tr:      tr,
		chainID: proposedChain,
	}
	for i, a := range res.Accounts {
		chainID, addr, err := parseAccount(a)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			s.chainID = chainID
		}
		s.accounts = append(s.accounts, addr.Hex())
	}
	tr.wg.Add(1)
	go s.handleRequests()
	return s, nil
}

func (s *Session) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.accounts...)
}

func (s *Session) ChainID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) Request(ctx context.Context, method string, params []any, out any) error {
	if s.isClosed() {
		return eip1193.NewError(eip1193.CodeDisconnected, "session closed")
	}

	switch method {
	case eip1193.MethodRequestAccounts, eip1193.MethodAccounts:
		return eip1193.SetResult(out, s.Accounts())
	case eip1193.MethodChainID:
		return eip1193.SetResult(out, networks.HexFromChainID(s.ChainID()))
	}

	var req sessionRequestParams
	req.Request.Method = method
	req.Request.Params = params
	if req.Request.Params == nil {
		req.Request.Params = []any{}
	}
	req.ChainID = caip2(s.ChainID())

	raw, err := s.tr.request(ctx, methodSessionRequest, req, tagSessionRequest)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return eip1193.NewError(eip1193.CodeDisconnected, err.Error())
		}
		return err
	}

	if method == eip1193.MethodSwitchChain {
		var sw eip1193.SwitchChainParams
		if err := eip1193.DecodeParam(params, 0, &sw); err == nil {
			if id, err := networks.ParseChainID(sw.ChainID); err == nil {
				s.setChain(id)
			}
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrapf(err, "decode %s result", method)
		}
	}
	return nil
}

func (s *Session) setChain(id uint64) {
	s.mu.Lock()
	s.chainID = id
	s.mu.Unlock()
}

func (s *Session) handleRequests() {
	defer s.tr.wg.Done()
	for {
		select {
		case <-s.tr.done:
			return
		case m := <-s.tr.requests:
			s.handle(m)
		}
	}
}

func (s *Session) handle(m rpcMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch m.Method {
	case methodSessionEvent:
		var ev sessionEventParams
		if err := json.Unmarshal(m.Params, &ev); err != nil {
			_ = s.tr.respondError(ctx, m.ID, eip1193.CodeInvalidParams, "invalid event", tagSessionRequestResult)
			return
		}
		s.applyEvent(ev)
		_ = s.tr.respond(ctx, m.ID, true, tagSessionRequestResult)

	case methodSessionPing:
		_ = s.tr.respond(ctx, m.ID, true, tagSessionRequestResult)

	case methodSessionDelete:
		var del sessionDeleteParams
		_ = json.Unmarshal(m.Params, &del)
		log.Info("relay session deleted by wallet", "session", s.ID, "code", del.Code, "reason", del.Message)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.tr.respond(ctx, m.ID, true, tagSessionDeleteResult)
		s.tr.closeConn()
	}
}

func (s *Session) applyEvent(ev sessionEventParams) {
	switch ev.Event.Name {
	case "chainChanged":
		var v any
		if err := json.Unmarshal(ev.Event.Data, &v); err != nil {
			return
		}
		switch x := v.(type) {
		case string:
			if id, err := networks.ParseChainID(x); err == nil {
				s.setChain(id)
			}
		case float64:
			s.setChain(uint64(x))
		}
	case "accountsChanged":
		var accounts []string
		if err := json.Unmarshal(ev.Event.Data, &accounts); err != nil {
			return
		}
		out := make([]string, 0, len(accounts))
		for _, a := range accounts {
			if _, addr, err := parseAccount(a); err == nil {
				out = append(out, addr.Hex())
			} else if common.IsHexAddress(a) {
				out = append(out, common.HexToAddress(a).Hex())
			}
		}
		if len(out) > 0 {
			s.mu.Lock()
			s.accounts = out
			s.mu.Unlock()
		}
	}
}

// Close tells the wallet the session is over and releases the connection.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	var err error
	if !already {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		_, _, err = s.tr.send(ctx, methodSessionDelete, sessionDeleteParams{
			Code:    codeUserDisconnected,
			Message: "User disconnected.",
		}, tagSessionDelete)
		cancel()
	}
	s.tr.close()
	if err != nil && !errors.Is(err, ErrClosed) {
		return errors.Wrap(err, "send session delete")
	}
	return nil
}
