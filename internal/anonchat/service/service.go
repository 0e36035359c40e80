// Package service 는 매칭, 방 수명, 신고 처리의 도메인 로직을 담당한다.
// 저장소 계층 위에서 상태 전이를 조율하고, 프레임 전달은 Sender에 위임한다.
package service

import (
	"context"

	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/anonchat/protocol"
)

// Sender 는 프레임을 대상 사용자에게 전달한다. 라우터가 구현한다.
type Sender interface {
	SendToUser(ctx context.Context, userID string, msg protocol.ServerMessage) error
}

// historyItems 는 저장된 히스토리를 클라이언트 프레임 형식으로 바꾼다.
func historyItems(roomID string, messages []model.RoomMessage) []protocol.HistoryItem {
	if len(messages) == 0 {
		return nil
	}
	items := make([]protocol.HistoryItem, 0, len(messages))
	for _, msg := range messages {
		items = append(items, protocol.HistoryItem{
			Type:   protocol.TypeText,
			RoomID: roomID,
			From:   msg.From,
			Body:   msg.Body,
			Ts:     msg.Ts,
		})
	}
	return items
}

