package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/park285/anonchat-go/internal/anonchat/bot"
	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/httpapi"
	"github.com/park285/anonchat-go/internal/anonchat/match"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
	"github.com/park285/anonchat-go/internal/anonchat/router"
	"github.com/park285/anonchat-go/internal/anonchat/server"
	"github.com/park285/anonchat-go/internal/anonchat/service"
	"github.com/park285/anonchat-go/internal/anonchat/signal"
	"github.com/park285/anonchat-go/internal/common/bootstrap"
	"github.com/park285/anonchat-go/internal/common/di"
	"github.com/park285/anonchat-go/internal/common/httpserver"
)

type anonchatStores struct {
	sessions   *acredis.SessionStore
	rooms      *acredis.RoomStore
	queues     *acredis.QueueStore
	matches    *acredis.MatchStore
	presence   *acredis.PresenceStore
	reports    *acredis.ReportStore
	lock       *acredis.ActionLock
	handshakes *acredis.HandshakeStore
}

func newAnonchatStores(cfg *acconfig.Config, client di.DataValkeyClient, logger *slog.Logger) *anonchatStores {
	return &anonchatStores{
		sessions:   acredis.NewSessionStore(client.Client, logger, cfg.Match.SessionTTL),
		rooms:      acredis.NewRoomStore(client.Client, logger),
		queues:     acredis.NewQueueStore(client.Client, logger, cfg.Match.SessionTTL),
		matches:    acredis.NewMatchStore(client.Client, logger),
		presence:   acredis.NewPresenceStore(client.Client, logger),
		reports:    acredis.NewReportStore(client.Client, logger, cfg.Report.ReportsPerLevel, cfg.Report.BaseBanHours),
		lock:       acredis.NewActionLock(client.Client, logger, acconfig.UserLockTTLSeconds*time.Second),
		handshakes: acredis.NewHandshakeStore(client.Client, logger),
	}
}

// hubDeliverer 는 Hub 생성 전에 Router가 필요로 하는 로컬 전달 경로를 지연 바인딩한다.
// Router 는 Hub를, Hub는 Router 기반 서비스를 참조하는 순환을 끊는다.
type hubDeliverer struct {
	hub *server.Hub
}

func (d *hubDeliverer) DeliverLocal(userID string, payload []byte) bool {
	if d.hub == nil {
		return false
	}
	return d.hub.DeliverLocal(userID, payload)
}

// anonchatRuntime 은 라우팅 계층과 소켓 계층을 묶어 들고 다닌다.
type anonchatRuntime struct {
	sessions   *acredis.SessionStore
	hub        *server.Hub
	wsHandler  *server.WSHandler
	subscriber *router.Subscriber
}

func newAnonchatResponder(ctx context.Context, cfg *acconfig.Config, logger *slog.Logger) (bot.Responder, error) {
	if cfg.Bot.APIKey == "" {
		logger.Warn("bot_api_key_missing", "fallback", "static_reply_only")
		return bot.FallbackResponder{}, nil
	}
	responder, err := bot.NewGeminiResponder(ctx, cfg.Bot.APIKey, cfg.Bot.Model)
	if err != nil {
		return nil, fmt.Errorf("create bot responder failed: %w", err)
	}
	return responder, nil
}

func newAnonchatRuntime(
	ctx context.Context,
	cfg *acconfig.Config,
	data di.DataValkeyClient,
	pubsub di.PubSubValkeyClient,
	responder bot.Responder,
	logger *slog.Logger,
) (*anonchatRuntime, error) {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	stores := newAnonchatStores(cfg, data, logger)
	if err := stores.matches.Preload(ctx); err != nil {
		return nil, fmt.Errorf("preload match script failed: %w", err)
	}

	engine := match.NewEngine(stores.matches, stores.queues, logger, cfg.Match.ScanLimit)

	deliverer := &hubDeliverer{}
	publisher := router.NewValkeyPublisher(data.Client)
	rtr := router.New(instanceID, stores.presence, publisher, deliverer, logger)

	bridge := bot.NewBridge(stores.rooms, responder, rtr, logger)
	roomSvc := service.NewRoomService(instanceID, stores.sessions, stores.rooms, engine, stores.presence, bridge, rtr, logger)
	matchSvc := service.NewMatchService(
		instanceID,
		stores.sessions,
		stores.rooms,
		engine,
		stores.reports,
		stores.lock,
		stores.presence,
		bridge,
		rtr,
		logger,
		cfg.Match.CooldownDelay,
	)
	reportSvc := service.NewReportService(stores.rooms, stores.reports, rtr, logger)

	relay := signal.NewRelay(stores.rooms, stores.handshakes, rtr, logger)

	hub := server.NewHub(instanceID, relay, roomSvc, cfg.Signal, logger)
	deliverer.hub = hub
	server.NewHandler(instanceID, hub, matchSvc, roomSvc, reportSvc, relay, logger)

	return &anonchatRuntime{
		sessions:   stores.sessions,
		hub:        hub,
		wsHandler:  server.NewWSHandler(hub, logger),
		subscriber: router.NewSubscriber(instanceID, pubsub.Client, rtr, logger, 0),
	}, nil
}

func newAnonchatDataValkey(
	ctx context.Context,
	cfg *acconfig.Config,
	logger *slog.Logger,
) (di.DataValkeyClient, func(), error) {
	client, closeFn, err := bootstrap.NewAndPingValkeyClient(ctx, bootstrap.ToValkeyDataConfig(cfg.Redis), "valkey_data", logger)
	if err != nil {
		return di.DataValkeyClient{}, nil, fmt.Errorf("init valkey failed: %w", err)
	}
	return di.DataValkeyClient{Client: client}, closeFn, nil
}

func newAnonchatPubSubValkey(
	ctx context.Context,
	cfg *acconfig.Config,
	logger *slog.Logger,
) (di.PubSubValkeyClient, func(), error) {
	client, closeFn, err := bootstrap.NewAndPingValkeyClient(ctx, bootstrap.ToValkeyPubSubConfig(cfg.Redis), "valkey_pubsub", logger)
	if err != nil {
		return di.PubSubValkeyClient{}, nil, fmt.Errorf("init valkey pubsub failed: %w", err)
	}
	return di.PubSubValkeyClient{Client: client}, closeFn, nil
}

func newAnonchatHTTPMux(rt *anonchatRuntime, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	httpapi.Register(mux, rt.wsHandler, rt.hub, rt.sessions, logger)
	return mux
}

func newAnonchatHTTPServer(cfg *acconfig.Config, mux *http.ServeMux) *http.Server {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return httpserver.NewServer(addr, mux, httpserver.ServerOptions{
		ReadHeaderTimeout: cfg.ServerTuning.ReadHeaderTimeout,
		IdleTimeout:       cfg.ServerTuning.IdleTimeout,
		MaxHeaderBytes:    cfg.ServerTuning.MaxHeaderBytes,
	})
}

func newAnonchatServerApp(
	logger *slog.Logger,
	httpServer *http.Server,
	rt *anonchatRuntime,
) *bootstrap.ServerApp {
	return bootstrap.NewServerApp(
		"anonchat",
		logger,
		httpServer,
		10*time.Second,
		bootstrap.BackgroundTask{
			Name:        "relay_subscriber",
			ErrorLogKey: "relay_subscriber_failed",
			Run:         rt.subscriber.Run,
		},
		bootstrap.BackgroundTask{
			Name:        "online_count_broadcaster",
			ErrorLogKey: "online_count_broadcaster_failed",
			Run: func(ctx context.Context) error {
				return runOnlineCountBroadcaster(ctx, rt, logger)
			},
		},
	)
}

// runOnlineCountBroadcaster 는 주기적으로 접속자 수를 세어 로컬 소켓 전체에 뿌린다.
func runOnlineCountBroadcaster(ctx context.Context, rt *anonchatRuntime, logger *slog.Logger) error {
	ticker := time.NewTicker(acconfig.OnlineCountIntervalSeconds * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			count, err := rt.sessions.CountOnline(ctx)
			if err != nil {
				logger.Warn("online_count_failed", "error", err)
				continue
			}
			rt.hub.Broadcast(protocol.ServerMessage{
				Type:  protocol.TypeOnlineCount,
				Count: count,
			})
		}
	}
}
