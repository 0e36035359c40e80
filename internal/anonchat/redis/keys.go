// Package redis 는 익명 매칭 서비스의 Redis/Valkey 키 생성 함수들을 정의합니다.
package redis

import (
	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/anonchat/model"
	"github.com/park285/anonchat-go/internal/common/valkeyx"
)

// sessionKey: 세션 레코드 저장용 키를 생성합니다.
// 형식: sess:{userID}
func sessionKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeySessionPrefix, userID)
}

// userRoomKey: 사용자→방 매핑 키를 생성합니다.
// 형식: user_room:{userID}
func userRoomKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyUserRoomPrefix, userID)
}

// roomKey: 대화방 해시 키를 생성합니다.
// 형식: room:{roomID}
func roomKey(roomID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyRoomPrefix, roomID)
}

// roomMsgsKey: 방 히스토리 리스트 키를 생성합니다.
// 형식: room_msgs:{roomID}
func roomMsgsKey(roomID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyRoomMsgsPrefix, roomID)
}

// handshakeKey: WebRTC 핸드셰이크 상태 키를 생성합니다.
// 형식: room_state:{roomID}
func handshakeKey(roomID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyRoomStatePrefix, roomID)
}

// pendingOfferKey: 오퍼 중복 방지 마커 키를 생성합니다.
// 형식: pending_offer:{roomID}
func pendingOfferKey(roomID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyPendingOffer, roomID)
}

// recentPartnerKey: 최근 매칭 상대 키를 생성합니다.
// 형식: recent:{userID}
func recentPartnerKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyRecentPrefix, userID)
}

// waitQueueKey: 대기 큐(sorted set) 키를 생성합니다.
// 형식: wait:{want}:{gender}:{preference}
func waitQueueKey(want model.MatchMode, gender, preference model.Gender) string {
	return valkeyx.BuildKey3(acconfig.RedisKeyWaitPrefix, string(want), string(gender), string(preference))
}

// waitMembershipKey: 사용자가 등록된 특정 큐 키를 기억하는 키를 생성합니다.
// 매칭 스크립트가 후보를 자기 큐에서 제거할 때 사용합니다.
// 형식: wait_key:{userID}
func waitMembershipKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyWaitKeyPrefix, userID)
}

// banKey: 제재 키를 생성합니다. TTL이 제재 기간입니다.
// 형식: ban:{userID}
func banKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyBanPrefix, userID)
}

// banLevelKey: 제재 단계 카운터 키를 생성합니다.
// 형식: ban_level:{userID}
func banLevelKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyBanLevelPrefix, userID)
}

// reportsKey: 고유 신고자 집합 키를 생성합니다.
// 형식: reports:{userID}
func reportsKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyReportsPrefix, userID)
}

// blockKey: 사용자의 차단 상대 집합 키를 생성합니다.
// 형식: block:{userID}
func blockKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyBlockPrefix, userID)
}

// graceKey: 재접속 유예 마커 키를 생성합니다.
// 형식: grace:{userID}
func graceKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyGracePrefix, userID)
}

// userLockKey: 사용자 단위 동작 직렬화 락 키를 생성합니다.
// 형식: lock:user:{userID}
func userLockKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyUserLockPrefix, userID)
}

// claimKey: 매칭 클레임 마커 키를 생성합니다.
// 형식: match_claim:{userID}
func claimKey(userID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyClaimPrefix, userID)
}

// interestsKey: 관심사 집합 키를 생성합니다. 매칭 스크립트의 교집합 검사에 사용합니다.
// 형식: sess:{userID}:interests
func interestsKey(userID string) string {
	return valkeyx.BuildKeySuffix(acconfig.RedisKeySessionPrefix, userID, "interests")
}

// InstanceChannel: 인스턴스 간 메시지 전달용 Pub/Sub 채널 이름을 생성합니다.
// 형식: instance:{instanceID}
func InstanceChannel(instanceID string) string {
	return valkeyx.BuildKey(acconfig.RedisKeyInstancePrefix, instanceID)
}

// ConnectionsHashKey: 사용자→인스턴스 매핑 해시 키를 반환합니다.
func ConnectionsHashKey() string {
	return acconfig.RedisKeyConnectionsHash
}
