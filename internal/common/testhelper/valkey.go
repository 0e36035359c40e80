package testhelper

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"
)

// NewMiniredisClient: 테스트 전용 인메모리 Redis와 연결된 valkey 클라이언트를 생성합니다.
// 종료는 t.Cleanup에 등록되므로 호출자가 신경 쓸 필요 없습니다.
func NewMiniredisClient(t *testing.T) (*miniredis.Miniredis, valkey.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		t.Fatalf("failed to create valkey client: %v", err)
	}
	t.Cleanup(client.Close)

	return mr, client
}

// DiscardLogger: 테스트 출력에 로그를 섞지 않는 slog 로거를 반환합니다.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
