package config

import (
	"fmt"
	"time"

	commonconfig "github.com/park285/anonchat-go/internal/common/config"
)

// ServerConfig: HTTP/WebSocket 서버 설정입니다.
type ServerConfig = commonconfig.ServerConfig

// ServerTuningConfig: 서버 성능 튜닝 옵션입니다.
type ServerTuningConfig = commonconfig.ServerTuningConfig

// RedisConfig: Redis/Valkey 캐시 연결 설정입니다.
type RedisConfig = commonconfig.RedisConfig

// LogConfig: 로그 출력 설정입니다.
type LogConfig = commonconfig.LogConfig

// MatchConfig: 매칭 엔진 튜닝 설정입니다.
type MatchConfig struct {
	SessionTTL    time.Duration // 세션 하트비트 TTL
	CooldownDelay time.Duration // 매칭 재시도 전 쿨다운
	ScanLimit     int           // 큐 스캔 후보 수 상한
}

// SignalConfig: WebRTC 시그널링 재전송 설정입니다.
type SignalConfig struct {
	MaxRetry   int           // 오퍼/앤서 전달 최대 재시도 횟수
	RetryDelay time.Duration // 재시도 간격
	AckTimeout time.Duration // 클라이언트 ack 대기 시간
}

// BotConfig: 봇 대화 브리지 설정입니다.
type BotConfig struct {
	APIKey string // Gemini API 키 (비어 있으면 고정 폴백 응답만 사용)
	Model  string // 사용할 Gemini 모델 이름
}

// ReportConfig: 신고/제재 정책 설정입니다.
type ReportConfig struct {
	ReportsPerLevel int // 제재 단계당 필요한 고유 신고자 수
	BaseBanHours    int // 1단계 제재 시간 (단계마다 2배)
}

// Config: anonchat 서비스 전체 설정을 통합하는 구조체입니다.
type Config struct {
	InstanceID   string // 인스턴스 식별자 (라우팅 채널 이름에 사용)
	Server       ServerConfig
	ServerTuning ServerTuningConfig
	Redis        RedisConfig
	Match        MatchConfig
	Signal       SignalConfig
	Bot          BotConfig
	Report       ReportConfig
	Log          LogConfig
}

// LoadFromEnv: 환경 변수에서 전체 설정을 읽어옵니다.
func LoadFromEnv() (*Config, error) {
	server, err := commonconfig.ReadServerConfigFromEnv(40310)
	if err != nil {
		return nil, fmt.Errorf("read server config failed: %w", err)
	}

	serverTuning, err := commonconfig.ReadServerTuningConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("read server tuning config failed: %w", err)
	}

	redis, err := commonconfig.ReadRedisConfigFromEnv(
		[]string{"REDIS_HOST", "CACHE_HOST"},
		[]string{"REDIS_PORT", "CACHE_PORT"},
		[]string{"REDIS_PASSWORD", "CACHE_PASSWORD"},
		"localhost",
		6379,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("read redis config failed: %w", err)
	}

	match, err := readMatchConfig()
	if err != nil {
		return nil, err
	}

	signal, err := readSignalConfig()
	if err != nil {
		return nil, err
	}

	report, err := readReportConfig()
	if err != nil {
		return nil, err
	}

	log, err := commonconfig.ReadLogConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("read log config failed: %w", err)
	}

	return &Config{
		InstanceID:   commonconfig.StringFromEnv("INSTANCE_ID", ""),
		Server:       server,
		ServerTuning: serverTuning,
		Redis:        redis,
		Match:        match,
		Signal:       signal,
		Bot: BotConfig{
			APIKey: commonconfig.StringFromEnvFirstNonEmpty(
				[]string{"GEMINI_API_KEY", "LLM_API_KEY"}, ""),
			Model: commonconfig.StringFromEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Report: report,
		Log:    log,
	}, nil
}

func readMatchConfig() (MatchConfig, error) {
	sessionTTL, err := commonconfig.DurationSecondsFromEnv("SESSION_TTL_SECONDS", SessionTTLSeconds)
	if err != nil {
		return MatchConfig{}, fmt.Errorf("read SESSION_TTL_SECONDS failed: %w", err)
	}

	cooldown, err := commonconfig.DurationMillisFromEnv("MATCH_COOLDOWN_MS", CooldownDelayMS)
	if err != nil {
		return MatchConfig{}, fmt.Errorf("read MATCH_COOLDOWN_MS failed: %w", err)
	}

	scanLimit, err := commonconfig.IntFromEnv("MATCH_SCAN_LIMIT", MatchScanLimit)
	if err != nil {
		return MatchConfig{}, fmt.Errorf("read MATCH_SCAN_LIMIT failed: %w", err)
	}
	if scanLimit <= 0 {
		return MatchConfig{}, fmt.Errorf("invalid MATCH_SCAN_LIMIT: %d", scanLimit)
	}

	return MatchConfig{
		SessionTTL:    sessionTTL,
		CooldownDelay: cooldown,
		ScanLimit:     scanLimit,
	}, nil
}

func readSignalConfig() (SignalConfig, error) {
	maxRetry, err := commonconfig.IntFromEnv("SIGNAL_MAX_RETRY", SignalMaxRetry)
	if err != nil {
		return SignalConfig{}, fmt.Errorf("read SIGNAL_MAX_RETRY failed: %w", err)
	}
	if maxRetry <= 0 {
		return SignalConfig{}, fmt.Errorf("invalid SIGNAL_MAX_RETRY: %d", maxRetry)
	}

	retryDelay, err := commonconfig.DurationMillisFromEnv("SIGNAL_RETRY_DELAY_MS", SignalRetryDelayMS)
	if err != nil {
		return SignalConfig{}, fmt.Errorf("read SIGNAL_RETRY_DELAY_MS failed: %w", err)
	}

	ackTimeout, err := commonconfig.DurationMillisFromEnv("SIGNAL_ACK_TIMEOUT_MS", SignalAckTimeoutMS)
	if err != nil {
		return SignalConfig{}, fmt.Errorf("read SIGNAL_ACK_TIMEOUT_MS failed: %w", err)
	}

	return SignalConfig{
		MaxRetry:   maxRetry,
		RetryDelay: retryDelay,
		AckTimeout: ackTimeout,
	}, nil
}

func readReportConfig() (ReportConfig, error) {
	perLevel, err := commonconfig.IntFromEnv("REPORTS_PER_LEVEL", ReportsPerLevel)
	if err != nil {
		return ReportConfig{}, fmt.Errorf("read REPORTS_PER_LEVEL failed: %w", err)
	}
	if perLevel <= 0 {
		return ReportConfig{}, fmt.Errorf("invalid REPORTS_PER_LEVEL: %d", perLevel)
	}

	baseHours, err := commonconfig.IntFromEnv("BASE_BAN_HOURS", BaseBanHours)
	if err != nil {
		return ReportConfig{}, fmt.Errorf("read BASE_BAN_HOURS failed: %w", err)
	}
	if baseHours <= 0 {
		return ReportConfig{}, fmt.Errorf("invalid BASE_BAN_HOURS: %d", baseHours)
	}

	return ReportConfig{
		ReportsPerLevel: perLevel,
		BaseBanHours:    baseHours,
	}, nil
}
