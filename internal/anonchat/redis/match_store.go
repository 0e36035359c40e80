package redis

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/valkey-io/valkey-go"

	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/assets"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	cerrors "github.com/park285/anonchat-go/internal/common/errors"
	"github.com/park285/anonchat-go/internal/common/lua"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// ClaimRequest 는 매칭 클레임 한 번의 입력이다.
type ClaimRequest struct {
	TargetQueue     string          // 스캔할 큐
	UserID          string          // 호출자
	RoomID          string          // 성공 시 생성할 방 ID
	MyQueue         string          // 호출자의 특정 큐 (비어 있을 수 있음)
	GlobalQueue     string          // 글로벌 폴백 큐
	Want            model.MatchMode // chat | call
	RequireInterest bool            // 관심사 교집합 요구 여부
	MaxScan         int             // 스캔 상한
}

// MatchStore 는 원자적 매칭 클레임을 수행한다.
// 스캔, 필터링, 큐 제거, 방 생성이 Lua 스크립트 한 번에 처리되어
// 동시에 두 사용자가 같은 후보를 잡는 일이 없다.
type MatchStore struct {
	client   valkey.Client
	registry *lua.Registry
	logger   *slog.Logger
}

// NewMatchStore 는 MatchStore를 생성한다.
func NewMatchStore(client valkey.Client, logger *slog.Logger) *MatchStore {
	registry := lua.NewRegistry([]lua.Script{
		{Name: lua.ScriptMatchClaim, Source: assets.MatchClaimLua},
	})
	return &MatchStore{client: client, registry: registry, logger: logger}
}

// Preload 는 매칭 스크립트를 서버에 미리 적재한다.
func (m *MatchStore) Preload(ctx context.Context) error {
	return m.registry.Preload(ctx, m.client)
}

// Claim 는 targetQueue를 스캔하여 첫 적합 후보를 클레임한다.
// 매칭이 성사되면 상대 ID를, 적합한 후보가 없으면 빈 문자열을 반환한다.
func (m *MatchStore) Claim(ctx context.Context, req ClaimRequest) (string, error) {
	requireInterest := "0"
	if req.RequireInterest {
		requireInterest = "1"
	}
	maxScan := req.MaxScan
	if maxScan <= 0 {
		maxScan = acconfig.MatchScanLimit
	}

	args := []string{
		req.TargetQueue,
		req.UserID,
		req.RoomID,
		strconv.Itoa(acconfig.RecentPartnerTTLMillis),
		strconv.Itoa(acconfig.RoomTTLSeconds),
		requireInterest,
		strconv.Itoa(maxScan),
		req.MyQueue,
		req.GlobalQueue,
		string(req.Want),
		strconv.Itoa(acconfig.ClaimTTLSeconds),
	}

	resp, err := m.registry.Exec(ctx, m.client, lua.ScriptMatchClaim, nil, args)
	if err != nil {
		return "", cerrors.RedisError{Operation: "match_claim_exec", Err: err}
	}

	partner, err := resp.ToString()
	if err != nil {
		if valkeyx.IsNil(err) {
			return "", nil
		}
		return "", cerrors.RedisError{Operation: "match_claim_parse", Err: err}
	}

	m.logger.Debug("match_claimed", "user_id", req.UserID, "partner_id", partner, "room_id", req.RoomID)
	return partner, nil
}
