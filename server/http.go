package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	router          *FastHTTPRouter
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	tlsManager      types.TLSManager
	state           atomic.Value
	shutdownTimeout time.Duration
	serveErr        chan error
}

// NewHTTPServer serves router on the configured address. tlsManager may be nil.
func NewHTTPServer(
	ctx context.Context,
	config *types.HTTPConfig,
	logger types.Logger,
	tlsManager types.TLSManager,
	router *FastHTTPRouter) (*FastHTTPServer, error) {
	if config == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "http server config")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := time.Duration(config.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		router:          router,
		httpConfig:      config,
		tlsManager:      tlsManager,
		shutdownTimeout: shutdownTimeout,
		serveErr:        make(chan error, 1),
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := h.router.FinalizePendingRoutes(); err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "failed to compile routes")
	}

	maxBody := h.httpConfig.MaxRequestBody
	if maxBody <= 0 {
		maxBody = 32 * 1024 * 1024
	}

	h.server = &fasthttp.Server{
		Handler:            h.router.Handler(),
		Name:               "sai-shop",
		ReadTimeout:        time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:        time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize: maxBody,
		TCPKeepalive:       true,
		CloseOnShutdown:    true,
		Logger:             zap.NewStdLog(zap.L()),
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := h.listen(addr)
	if err != nil {
		h.setState(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "%v", err)
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.serveErr <- err
		}
		h.setState(StateStopped)
	}()

	h.setState(StateRunning)

	h.logger.Info("HTTP server started successfully",
		zap.String("address", listener.Addr().String()),
		zap.Bool("tls", h.tlsManager != nil),
		zap.Int("routes", len(h.router.GetAllRoutes())))

	return nil
}

func (h *FastHTTPServer) listen(addr string) (net.Listener, error) {
	if h.tlsManager != nil {
		return h.tlsManager.Listen(addr)
	}
	return net.Listen("tcp", addr)
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("Server stop timeout, some requests may not have completed", zap.Error(err))
		return types.Errorf(types.ErrServerStopFailed, "%v", err)
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr is the bound listener address, useful when the port is 0.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Errors yields the error that ended Serve, if any.
func (h *FastHTTPServer) Errors() <-chan error {
	return h.serveErr
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) {
	h.state.Store(newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}
