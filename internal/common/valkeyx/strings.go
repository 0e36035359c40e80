package valkeyx

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"
)

// SetStringEX: 문자열 값을 TTL과 함께 저장한다. ttl이 0 이하이면 TTL 없이 저장한다.
func SetStringEX(ctx context.Context, client valkey.Client, key, value string, ttl time.Duration) error {
	builder := client.B().Set().Key(key).Value(value)
	if ttl > 0 {
		return client.Do(ctx, builder.Ex(ttl).Build()).Error()
	}
	return client.Do(ctx, builder.Build()).Error()
}

// GetString: 문자열 값을 조회한다. 키가 없으면 ok=false를 반환한다.
func GetString(ctx context.Context, client valkey.Client, key string) (string, bool, error) {
	value, err := client.Do(ctx, client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if IsNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// GetBytes: 바이트 값을 조회한다. 키가 없으면 ok=false를 반환한다.
func GetBytes(ctx context.Context, client valkey.Client, key string) ([]byte, bool, error) {
	raw, err := client.Do(ctx, client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

// DeleteKeys: 주어진 키들을 삭제한다. 빈 목록이면 아무 일도 하지 않는다.
func DeleteKeys(ctx context.Context, client valkey.Client, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := client.B().Del().Key(keys...).Build()
	return client.Do(ctx, cmd).Error()
}

// Exists: 키 존재 여부를 확인한다.
func Exists(ctx context.Context, client valkey.Client, key string) (bool, error) {
	n, err := client.Do(ctx, client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
