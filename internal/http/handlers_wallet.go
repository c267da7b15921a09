package http

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/presenter"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/gin-gonic/gin"
)

type ensureNetworkReq struct {
	// Network is an environment (mainnet, testnet, local) or a registry name.
	Network    string `json:"network"`
	ChainIDHex string `json:"chainIdHex"`
}

type sendTransactionReq struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

func (s *Server) handleConnect(c *gin.Context) {
	facts := environment.FromRequest(c.Request, s.cfg.Facts)
	ctx := environment.WithFacts(c.Request.Context(), facts)

	w, err := s.deps.Wallet.Connect(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{
		"wallet":    w,
		"available": s.deps.Wallet.AvailableWallets(),
		"strategy":  s.deps.Wallet.Snapshot().Strategy,
	})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.deps.Wallet.Disconnect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, nil)
}

func (s *Server) handleActive(c *gin.Context) {
	writeOK(c, gin.H{"wallet": s.deps.Wallet.ActiveWallet()})
}

func (s *Server) handleAvailable(c *gin.Context) {
	avail := s.deps.Wallet.AvailableWallets()
	if avail == nil {
		avail = []wallet.Wallet{}
	}
	writeOK(c, gin.H{"wallets": avail})
}

func (s *Server) handleBalance(c *gin.Context) {
	bal, err := s.deps.Wallet.RefreshBalance(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{"balance": (*hexutil.Big)(bal)})
}

func (s *Server) handleEnsureNetwork(c *gin.Context) {
	var req ensureNetworkReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, errors.Mark(errors.Wrap(err, "invalid JSON"), errBadRequest))
			return
		}
	}

	target, err := s.resolveNetwork(c, req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok, err := s.deps.Wallet.EnsureNetwork(c.Request.Context(), target)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{"onNetwork": ok, "chainIdHex": target.ChainIDHex})
}

func (s *Server) resolveNetwork(c *gin.Context, req ensureNetworkReq) (networks.Descriptor, error) {
	ctx := c.Request.Context()
	switch {
	case strings.TrimSpace(req.ChainIDHex) != "":
		if s.deps.Registry != nil {
			d, ok, err := s.deps.Registry.FindByChainIDHex(ctx, req.ChainIDHex)
			if err != nil {
				return networks.Descriptor{}, errors.Mark(err, errBadRequest)
			}
			if ok {
				return d, nil
			}
		}
		return networks.Descriptor{}, errors.Wrapf(errNotFound, "network %s", req.ChainIDHex)

	case strings.TrimSpace(req.Network) != "":
		if d, err := networks.ForEnvironment(req.Network); err == nil {
			return d, nil
		}
		if s.deps.Registry != nil {
			d, ok, err := s.deps.Registry.FindByName(ctx, req.Network)
			if err != nil {
				return networks.Descriptor{}, err
			}
			if ok {
				return d, nil
			}
		}
		return networks.Descriptor{}, errors.Wrapf(errNotFound, "network %s", req.Network)
	}
	return s.deps.Wallet.PaymentNetwork(), nil
}

func (s *Server) handleSendTransaction(c *gin.Context) {
	var req sendTransactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Mark(errors.Wrap(err, "invalid JSON"), errBadRequest))
		return
	}
	tx, err := req.toTx()
	if err != nil {
		writeError(c, errors.Mark(err, errBadRequest))
		return
	}

	hash, err := s.deps.Wallet.SendTransaction(c.Request.Context(), tx)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{"txHash": hash})
}

func (r sendTransactionReq) toTx() (wallet.Tx, error) {
	var tx wallet.Tx
	if to := strings.TrimSpace(r.To); to != "" {
		if !common.IsHexAddress(to) {
			return tx, errors.Newf("invalid to address %q", to)
		}
		addr := common.HexToAddress(to)
		tx.To = &addr
	}
	if d := strings.TrimSpace(r.Data); d != "" && d != "0x" {
		b, err := hexutil.Decode(d)
		if err != nil {
			return tx, errors.Wrap(err, "invalid data")
		}
		tx.Data = b
	}
	v, err := parseQuantity(r.Value)
	if err != nil {
		return tx, err
	}
	tx.Value = v
	g, err := parseQuantity(r.Gas)
	if err != nil {
		return tx, err
	}
	if g != nil {
		if !g.IsUint64() {
			return tx, errors.Newf("gas out of range: %s", r.Gas)
		}
		tx.Gas = g.Uint64()
	}
	if tx.To == nil && len(tx.Data) == 0 {
		return tx, errors.New("transaction needs a recipient or data")
	}
	return tx, nil
}

func (s *Server) handleUI(c *gin.Context) {
	snap := s.deps.Wallet.Snapshot()
	writeOK(c, gin.H{"button": presenter.Button(snap), "snapshot": snap})
}
