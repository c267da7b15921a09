package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/payment"
	"github.com/farmgoods-io/farm-wallet-client/internal/presenter"
	"github.com/farmgoods-io/farm-wallet-client/internal/tokens"
	"github.com/gin-gonic/gin"
)

type setNetworkReq struct {
	Network string `json:"network" binding:"required"`
}

func (s *Server) handleNetworks(c *gin.Context) {
	var list []networks.Descriptor
	if s.deps.Registry != nil {
		list = s.deps.Registry.List()
	} else {
		list = networks.Builtins()
	}
	paymentNet := s.deps.Wallet.PaymentNetwork()

	data := gin.H{
		"networks":       list,
		"paymentNetwork": paymentNet,
		"tokens":         tokens.List(paymentNet),
	}
	if s.deps.State != nil {
		data["selected"] = s.deps.State.Get().Network
	}
	writeOK(c, data)
}

func (s *Server) handleSetNetwork(c *gin.Context) {
	var req setNetworkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Mark(errors.Wrap(err, "invalid JSON"), errBadRequest))
		return
	}

	var (
		d   networks.Descriptor
		err error
	)
	if s.deps.State != nil {
		d, err = s.deps.State.SetNetwork(req.Network)
	} else {
		d, err = networks.ForEnvironment(req.Network)
	}
	if err != nil {
		writeError(c, errors.Mark(err, errBadRequest))
		return
	}
	s.deps.Wallet.SetPaymentNetwork(d)
	writeOK(c, gin.H{"network": req.Network, "paymentNetwork": d})
}

func (s *Server) handlePay(c *gin.Context) {
	if s.deps.Checkout == nil {
		c.JSON(http.StatusNotImplemented, response{Error: "checkout not configured"})
		return
	}
	var o payment.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		writeError(c, errors.Mark(errors.Wrap(err, "invalid JSON"), errBadRequest))
		return
	}
	p, err := s.deps.Checkout.Pay(c.Request.Context(), o)
	if err != nil {
		if p != nil {
			c.JSON(statusFor(err), response{Error: err.Error(), Data: p})
			return
		}
		writeError(c, err)
		return
	}
	writeOK(c, p)
}

func (s *Server) handlePairingQR(c *gin.Context) {
	if s.deps.Modal == nil || s.deps.Modal.URI() == "" {
		writeError(c, errors.Wrap(errNotFound, "no pairing in progress"))
		return
	}
	png, err := presenter.QRCode(s.deps.Modal.URI())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
