package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/payment"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, payment.ErrInvalidOrder),
		errors.Is(err, payment.ErrUnknownToken):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrConnectInProgress):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, wallet.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrNoWalletAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrWrongNetwork),
		errors.Is(err, wallet.ErrUnknownChain),
		errors.Is(err, wallet.ErrGasEstimationFailed),
		errors.Is(err, payment.ErrReverted),
		errors.Is(err, payment.ErrReceiptTimeout):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, response{OK: false, Error: err.Error()})
}

func writeOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{OK: true, Data: data})
}
