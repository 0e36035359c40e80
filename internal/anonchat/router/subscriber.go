package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"github.com/valkey-io/valkey-go"

	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// Subscriber 는 이 인스턴스의 Pub/Sub 채널을 구독하여
// 다른 인스턴스가 넘긴 프레임을 로컬 소켓으로 전달한다.
type Subscriber struct {
	instanceID  string
	client      valkey.Client // 구독 전용 클라이언트
	router      *Router
	logger      *slog.Logger
	workerCount int
}

// NewSubscriber 는 Subscriber를 생성한다. client는 구독 전용이어야 한다.
func NewSubscriber(instanceID string, client valkey.Client, router *Router, logger *slog.Logger, workerCount int) *Subscriber {
	if workerCount <= 0 {
		workerCount = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		instanceID:  instanceID,
		client:      client,
		router:      router,
		logger:      logger,
		workerCount: workerCount,
	}
}

// Run 은 컨텍스트가 취소될 때까지 구독 루프를 유지한다.
// 프레임 처리는 워커 풀에서 수행하여 수신 루프를 막지 않는다.
func (s *Subscriber) Run(ctx context.Context) error {
	channel := acredis.InstanceChannel(s.instanceID)
	workers := pool.New().WithMaxGoroutines(s.workerCount)
	defer workers.Wait()

	s.logger.Info("relay_subscriber_started", "channel", channel)

	cmd := s.client.B().Subscribe().Channel(channel).Build()
	err := s.client.Receive(ctx, cmd, func(msg valkey.PubSubMessage) {
		raw := []byte(msg.Message)
		workers.Go(func() {
			s.router.HandleRelayFrame(ctx, raw)
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info("relay_subscriber_stopped", "channel", channel)
	return nil
}
