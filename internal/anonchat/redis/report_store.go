package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// ReportStore: 신고 집계와 차단 목록, 단계적 밴을 관리한다.
// 밴 기간은 base * 2^(level-1) 시간으로 누적 레벨마다 두 배가 된다.
type ReportStore struct {
	client          valkey.Client
	logger          *slog.Logger
	reportsPerLevel int
	baseBanHours    int
}

func NewReportStore(client valkey.Client, logger *slog.Logger, reportsPerLevel, baseBanHours int) *ReportStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStore{
		client:          client,
		logger:          logger,
		reportsPerLevel: reportsPerLevel,
		baseBanHours:    baseBanHours,
	}
}

// Block: 두 사용자를 양방향으로 차단 목록에 추가합니다.
// 이후 매칭 후보 스캔에서 서로 제외됩니다.
func (s *ReportStore) Block(ctx context.Context, a, b string) error {
	cmds := []valkey.Completed{
		s.client.B().Sadd().Key(blockKey(a)).Member(b).Build(),
		s.client.B().Sadd().Key(blockKey(b)).Member(a).Build(),
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("add block pair failed: %w", err)
		}
	}
	return nil
}

// IsBlocked: a가 b를 차단했는지 확인합니다.
func (s *ReportStore) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	cmd := s.client.B().Sismember().Key(blockKey(a)).Member(b).Build()
	blocked, err := s.client.Do(ctx, cmd).AsBool()
	if err != nil {
		return false, fmt.Errorf("check block failed: %w", err)
	}
	return blocked, nil
}

// ReportOutcome 는 신고 처리 결과다.
type ReportOutcome struct {
	Duplicate bool          // 같은 신고자의 반복 신고 여부
	Banned    bool          // 이번 신고로 밴이 적용되었는지
	Level     int64         // 적용된 밴 레벨
	Duration  time.Duration // 적용된 밴 기간
}

// Report: 신고를 기록하고, 중복 제거된 신고자 수가 임계치에 도달하면 밴을 적용합니다.
// 같은 신고자의 반복 신고는 집계에 한 번만 반영됩니다.
// 밴 적용 시 신고자 집합을 비워 다음 레벨 집계를 새로 시작합니다.
func (s *ReportStore) Report(ctx context.Context, reporterID, reportedID string) (ReportOutcome, error) {
	addCmd := s.client.B().Sadd().Key(reportsKey(reportedID)).Member(reporterID).Build()
	added, err := s.client.Do(ctx, addCmd).AsInt64()
	if err != nil {
		return ReportOutcome{}, fmt.Errorf("record report failed: %w", err)
	}
	if added == 0 {
		return ReportOutcome{Duplicate: true}, nil
	}

	count, err := s.client.Do(ctx, s.client.B().Scard().Key(reportsKey(reportedID)).Build()).AsInt64()
	if err != nil {
		return ReportOutcome{}, fmt.Errorf("count reports failed: %w", err)
	}
	if count < int64(s.reportsPerLevel) {
		return ReportOutcome{}, nil
	}

	level, err := s.client.Do(ctx, s.client.B().Incr().Key(banLevelKey(reportedID)).Build()).AsInt64()
	if err != nil {
		return ReportOutcome{}, fmt.Errorf("increment ban level failed: %w", err)
	}

	banDuration := time.Duration(s.baseBanHours) * time.Hour
	for i := int64(1); i < level; i++ {
		banDuration *= 2
	}
	if err := valkeyx.SetStringEX(ctx, s.client, banKey(reportedID), "1", banDuration); err != nil {
		return ReportOutcome{}, fmt.Errorf("set ban failed: %w", err)
	}

	if err := valkeyx.DeleteKeys(ctx, s.client, reportsKey(reportedID)); err != nil {
		return ReportOutcome{}, fmt.Errorf("reset reports failed: %w", err)
	}

	s.logger.Warn("user_banned",
		"user_id", reportedID,
		"ban_level", level,
		"duration", banDuration)
	return ReportOutcome{Banned: true, Level: level, Duration: banDuration}, nil
}

// IsBanned: 사용자의 밴 여부와 남은 기간을 반환합니다.
func (s *ReportStore) IsBanned(ctx context.Context, userID string) (bool, time.Duration, error) {
	resp := s.client.Do(ctx, s.client.B().Ttl().Key(banKey(userID)).Build())
	remaining, err := resp.AsInt64()
	if err != nil {
		return false, 0, fmt.Errorf("check ban failed: %w", err)
	}
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, time.Duration(remaining) * time.Second, nil
}
