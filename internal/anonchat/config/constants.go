package config

// Redis 키 상수.
const (
	RedisKeySessionPrefix   = "sess"
	RedisKeyUserRoomPrefix  = "user_room"
	RedisKeyRoomPrefix      = "room"
	RedisKeyRoomMsgsPrefix  = "room_msgs"
	RedisKeyRoomStatePrefix = "room_state"
	RedisKeyRecentPrefix    = "recent"
	RedisKeyWaitPrefix      = "wait"
	RedisKeyWaitKeyPrefix   = "wait_key"
	RedisKeyBanPrefix       = "ban"
	RedisKeyBanLevelPrefix  = "ban_level"
	RedisKeyReportsPrefix   = "reports"
	RedisKeyBlockPrefix     = "block"
	RedisKeyGracePrefix     = "grace"
	RedisKeyUserLockPrefix  = "lock:user"
	RedisKeyClaimPrefix     = "match_claim"
	RedisKeyPendingOffer    = "pending_offer"
	RedisKeyConnectionsHash = "connections"
	RedisKeyInstancePrefix  = "instance"
)

// Redis TTL 상수.
const (
	// SessionTTLSeconds 는 하트비트가 끊긴 세션이 만료되기까지의 시간이다.
	SessionTTLSeconds      = 180
	GraceTTLSeconds        = 10
	RecentPartnerTTLMillis = 60000
	RoomTTLSeconds         = 600
	HandshakeTTLSeconds    = 20
	PendingOfferTTLSeconds = 20
	UserLockTTLSeconds     = 5
	ClaimTTLSeconds        = 30
)

// 매칭 상수.
const (
	MatchScanLimit    = 50
	CooldownDelayMS   = 400
	RoomHistoryMax    = 50
	ResumeReplayDelay = 900
)

// 신고/제재 상수.
const (
	ReportsPerLevel = 10
	BaseBanHours    = 1
)

// 시그널링 상수.
const (
	SignalMaxRetry     = 5
	SignalRetryDelayMS = 3000
	SignalAckTimeoutMS = 2000
)

// 봇 대화 상수.
const (
	// BotRoomTTLSeconds 는 봇 방 레코드의 저장 TTL이다. 채팅방 수명 타이머와 별개다.
	BotRoomTTLSeconds     = 60
	BotLifetimeMinSeconds = 60
	BotLifetimeMaxSeconds = 65
	BotHistoryWindow      = 20
	BotTypingBaseMS       = 300
	BotTypingPerCharMS    = 40
	BotTypingMinMS        = 1000
	BotTypingMaxMS        = 6000
	BotMaxOutputTokens    = 20
	BotTemperature        = 0.8
)

// 온라인 카운트 상수.
const (
	OnlineCountIntervalSeconds = 10
)
