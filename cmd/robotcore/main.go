// Package main is the entry point for the robot driver control core.
package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/industrial-robotics/robotcore/config"
	"github.com/industrial-robotics/robotcore/internal/audit"
	"github.com/industrial-robotics/robotcore/internal/core"
	"github.com/industrial-robotics/robotcore/internal/hwtransport"
	"github.com/industrial-robotics/robotcore/internal/rpcgateway"
	"github.com/industrial-robotics/robotcore/internal/session"
	"github.com/industrial-robotics/robotcore/internal/trajectorygen"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting robot core", zap.String("robot_id", cfg.RobotID))

	a := newAgent(cfg, logger)
	if err := a.run(ctx); err != nil {
		logger.Fatal("robot core failed", zap.Error(err))
	}
}

// agent coordinates all robot core components: the control loop, the
// transport stub, the RPC gateway, and the audit publisher.
type agent struct {
	cfg    *config.Config
	logger *zap.Logger

	controller  *core.Controller
	loop        *core.ControlLoop
	registry    *session.Registry
	auditor     *audit.Publisher
	gateway     *rpcgateway.Server
	httpServer  *http.Server
	hwStub      *hwtransport.StubTransport
	jwksFetcher *session.JWKSFetcher
}

func newAgent(cfg *config.Config, logger *zap.Logger) *agent {
	return &agent{cfg: cfg, logger: logger}
}

func (a *agent) run(ctx context.Context) error {
	a.initComponents()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go a.loop.Run(loopCtx)
	go a.hwStub.Simulate(loopCtx, a.controller, len(a.cfg.JointNames), a.cfg.TickPeriod)
	if a.jwksFetcher != nil {
		go a.jwksFetcher.Run(loopCtx, 5*time.Minute, func(err error) {
			a.logger.Warn("JWKS refresh failed", zap.Error(err))
		})
	}

	go func() {
		a.logger.Info("rpc gateway listening", zap.String("addr", a.cfg.ListenAddr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("rpc gateway stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	return a.shutdown()
}

func (a *agent) initComponents() {
	robotCfg := core.RobotConfig{
		JointNames:            a.cfg.JointNames,
		DeviceUUID:            a.cfg.RobotID,
		JogJointLimitRad:      degToRad(a.cfg.JogJointLimitDeg),
		JogJointTolRad:        degToRad(a.cfg.JogJointTolDeg),
		TrajectoryErrorTolRad: degToRad(a.cfg.TrajectoryErrorTolDeg),
		JogJointTimeout:       a.cfg.JogJointTimeout,
		CommunicationTimeout:  a.cfg.CommunicationTimeout,
		TickPeriod:            a.cfg.TickPeriod,
	}

	validator := a.initTokenValidator()
	a.registry = session.NewRegistry(a.cfg.RobotID, validator)

	a.hwStub = hwtransport.NewStubTransport(a.logger)

	a.controller = core.NewController(robotCfg, a.hwStub, trajectorygen.LinearFactory{}, a.registry, nil)
	a.loop = core.NewControlLoop(a.controller)

	a.auditor = audit.NewPublisher(a.cfg.GatewayHTTPURL, a.cfg.RobotID)

	a.gateway = rpcgateway.NewServer(a.controller, a.registry, a.auditor, a.logger, a.cfg.RateLimitPositionHz, a.cfg.RateLimitVelocityHz)
	mux := http.NewServeMux()
	mux.Handle("/v1/control", a.gateway)
	a.httpServer = &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}

	a.logger.Info("components initialized")
}

func (a *agent) initTokenValidator() *session.TokenValidator {
	a.jwksFetcher = session.NewJWKSFetcher(a.cfg.GatewayJWKSURL, 5*time.Minute)
	if err := a.jwksFetcher.Refresh(); err != nil {
		a.logger.Warn("initial JWKS fetch failed", zap.Error(err))
	}

	pub, err := a.jwksFetcher.GetPublicKey("gateway-signing-key")
	if err != nil {
		a.logger.Warn("token validator not initialized", zap.Error(err))
		return nil
	}

	return session.NewTokenValidator(pub, a.cfg.RobotID, 30*time.Second)
}

func (a *agent) shutdown() error {
	a.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("error closing rpc gateway", zap.Error(err))
	}

	a.logger.Info("shutdown complete")
	return nil
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
