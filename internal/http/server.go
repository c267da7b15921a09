// Package http is the local HTTP facade the storefront UI uses to drive the wallet.
package http

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/appstate"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/payment"
	"github.com/farmgoods-io/farm-wallet-client/internal/presenter"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

//go:embed ui_index.html
var uiIndexHTML []byte

const DefaultAddr = "127.0.0.1:6137"

type Config struct {
	Addr           string
	AllowedOrigins []string
	// LoopbackOnly rejects requests that do not come from and target this machine.
	LoopbackOnly bool
	// Facts are the environment defaults; request headers override them.
	Facts environment.Facts
}

type Deps struct {
	Wallet   *wallet.Coordinator
	Registry *networks.Registry
	State    *appstate.Store
	Hub      *presenter.Hub
	Modal    *presenter.Modal
	Checkout *payment.Checkout
}

type Server struct {
	cfg  Config
	deps Deps

	engine *gin.Engine
	srv    *http.Server
	ln     net.Listener
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Wallet == nil {
		return nil, errors.New("http: wallet coordinator is required")
	}
	if deps.Hub == nil {
		deps.Hub = presenter.NewHub()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if _, ok := deps.Hub.Last(); !ok {
		deps.Hub.Notify(deps.Wallet.Snapshot())
	}

	s := &Server{cfg: cfg, deps: deps}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", environment.HeaderMobileHint, environment.HeaderViewportWidth, environment.HeaderViewportAlt, environment.HeaderNativeBridge, environment.HeaderInjected},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}))
	}
	if s.cfg.LoopbackOnly {
		r.Use(loopbackOnly())
	}

	r.GET("/healthz", s.handleHealth)
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", uiIndexHTML)
	})

	w := r.Group("/wallet")
	{
		w.POST("/connect", s.handleConnect)
		w.POST("/disconnect", s.handleDisconnect)
		w.GET("/active", s.handleActive)
		w.GET("/available", s.handleAvailable)
		w.GET("/balance", s.handleBalance)
		w.POST("/ensure-network", s.handleEnsureNetwork)
		w.POST("/send-transaction", s.handleSendTransaction)
		w.GET("/ui", s.handleUI)
		w.GET("/events", s.handleEvents)
		w.GET("/pairing/qr.png", s.handlePairingQR)
	}

	r.GET("/networks", s.handleNetworks)
	r.POST("/state/network", s.handleSetNetwork)
	r.POST("/checkout/pay", s.handlePay)

	return r
}

func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLoopbackRequest(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, response{Error: "forbidden"})
			return
		}
		if !isSafeLocalHost(c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, response{Error: "forbidden host"})
			return
		}
		c.Next()
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.Addr)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := s.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("wallet http server stopped", "error", err)
		}
	}()
	log.Info("wallet http server listening", "url", s.URL())
	return nil
}

func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return fmt.Sprintf("http://%s", s.ln.Addr().String())
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	writeOK(c, gin.H{"state": s.deps.Wallet.State()})
}
