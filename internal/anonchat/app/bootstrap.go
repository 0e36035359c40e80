package app

import (
	"context"
	"log/slog"

	"github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/common/bootstrap"
)

// Initialize 는 anonchat 애플리케이션 의존성을 초기화하고 ServerApp을 반환한다.
func Initialize(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bootstrap.ServerApp, func(), error) {
	dataValkeyClient, cleanupDataValkey, err := newAnonchatDataValkey(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	pubsubValkeyClient, cleanupPubSubValkey, err := newAnonchatPubSubValkey(ctx, cfg, logger)
	if err != nil {
		cleanupDataValkey()
		return nil, nil, err
	}

	responder, err := newAnonchatResponder(ctx, cfg, logger)
	if err != nil {
		cleanupPubSubValkey()
		cleanupDataValkey()
		return nil, nil, err
	}

	runtime, err := newAnonchatRuntime(ctx, cfg, dataValkeyClient, pubsubValkeyClient, responder, logger)
	if err != nil {
		cleanupPubSubValkey()
		cleanupDataValkey()
		return nil, nil, err
	}

	httpMux := newAnonchatHTTPMux(runtime, logger)
	httpServer := newAnonchatHTTPServer(cfg, httpMux)
	serverApp := newAnonchatServerApp(logger, httpServer, runtime)

	cleanup := func() {
		cleanupPubSubValkey()
		cleanupDataValkey()
	}

	return serverApp, cleanup, nil
}
