package service

import (
	"context"
	"log/slog"

	acerrors "github.com/park285/anonchat-go/internal/anonchat/errors"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
	acredis "github.com/park285/anonchat-go/internal/anonchat/redis"
)

// ReasonBeingReported 는 신고로 방이 닫힐 때 대상에게 보내는 사유다.
const ReasonBeingReported = "being_reported"

// ReportService 는 신고 접수, 차단, 제재 단계 상승, 방 해체를 담당한다.
type ReportService struct {
	rooms   *acredis.RoomStore
	reports *acredis.ReportStore
	sender  Sender
	logger  *slog.Logger
}

// NewReportService 는 ReportService를 생성한다.
func NewReportService(rooms *acredis.RoomStore, reports *acredis.ReportStore, sender Sender, logger *slog.Logger) *ReportService {
	return &ReportService{
		rooms:   rooms,
		reports: reports,
		sender:  sender,
		logger:  logger.With("component", "report_service"),
	}
}

// Report 는 같은 방의 상대에 대한 신고를 처리한다.
// 중복 신고여도 방은 해체한다. 고유 신고자 수가 기준을 넘으면 제재를 건다.
func (s *ReportService) Report(ctx context.Context, reporterID, targetID, roomID string) error {
	if reporterID == targetID {
		return acerrors.SelfReportError{UserID: reporterID}
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || !room.Has(reporterID) || !room.Has(targetID) {
		return acerrors.NotInRoomError{UserID: reporterID}
	}

	if err := s.reports.Block(ctx, reporterID, targetID); err != nil {
		return err
	}

	outcome, err := s.reports.Report(ctx, reporterID, targetID)
	if err != nil {
		return err
	}
	if outcome.Banned {
		s.send(ctx, targetID, protocol.ServerMessage{
			Type:          protocol.TypeBanned,
			RetryAfterSec: int64(outcome.Duration.Seconds()),
			Message:       "Multiple users reported your behaviour",
		})
		s.logger.Warn("user_banned",
			"user_id", targetID, "level", outcome.Level, "duration", outcome.Duration)
	}

	s.send(ctx, reporterID, protocol.ServerMessage{
		Type:     protocol.TypeReportOK,
		RoomID:   roomID,
		TargetID: targetID,
		Dedup:    outcome.Duplicate,
	})

	return s.dissolve(ctx, roomID, reporterID, targetID)
}

// dissolve 는 신고된 방과 매핑을 지우고 대상에게 통지한다.
func (s *ReportService) dissolve(ctx context.Context, roomID, reporterID, targetID string) error {
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.DeleteUserRoom(ctx, reporterID, ""); err != nil {
		return err
	}
	if err := s.rooms.DeleteUserRoom(ctx, targetID, ""); err != nil {
		return err
	}

	s.send(ctx, targetID, protocol.ServerMessage{
		Type:   protocol.TypeRoomClosed,
		RoomID: roomID,
		Reason: ReasonBeingReported,
	})

	s.logger.Info("room_dissolved_by_report",
		"room_id", roomID, "reporter_id", reporterID, "target_id", targetID)
	return nil
}

func (s *ReportService) send(ctx context.Context, userID string, msg protocol.ServerMessage) {
	if err := s.sender.SendToUser(ctx, userID, msg); err != nil {
		s.logger.Warn("send_failed", "user_id", userID, "type", msg.Type, "error", err)
	}
}
