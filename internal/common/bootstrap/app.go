package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ServerApp 는 실행 준비가 끝난 서버 애플리케이션이다.
type ServerApp struct {
	Service         string
	Logger          *slog.Logger
	Server          *http.Server
	ShutdownTimeout time.Duration
	BackgroundTasks []BackgroundTask
}

// NewServerApp 는 ServerApp을 생성한다.
func NewServerApp(
	service string,
	logger *slog.Logger,
	server *http.Server,
	shutdownTimeout time.Duration,
	backgroundTasks ...BackgroundTask,
) *ServerApp {
	return &ServerApp{
		Service:         service,
		Logger:          logger,
		Server:          server,
		ShutdownTimeout: shutdownTimeout,
		BackgroundTasks: backgroundTasks,
	}
}

// Run 는 서버와 백그라운드 작업을 실행한다.
func (a *ServerApp) Run(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return RunHTTPServer(
		ctx,
		a.Logger,
		a.Service,
		a.Server,
		a.ShutdownTimeout,
		a.BackgroundTasks...,
	)
}
