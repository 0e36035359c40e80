// Package valkeyx 는 Redis/Valkey 클라이언트 공통 유틸리티를 제공한다.
// 키 생성, 연결, nil 체크, 문자열 조회 헬퍼를 포함한다.
package valkeyx

import "strings"

// BuildKey 는 prefix와 id를 "{prefix}:{id}" 형식으로 결합한다.
// id 양끝 공백은 제거한다.
func BuildKey(prefix, id string) string {
	return prefix + ":" + strings.TrimSpace(id)
}

// BuildKey3 는 prefix와 세 id를 "{prefix}:{id1}:{id2}:{id3}" 형식으로 결합한다.
func BuildKey3(prefix, id1, id2, id3 string) string {
	return prefix + ":" + strings.TrimSpace(id1) + ":" + strings.TrimSpace(id2) + ":" + strings.TrimSpace(id3)
}

// BuildKeySuffix 는 "{prefix}:{id}:{suffix}" 형식의 키를 생성한다.
// suffix는 고정 문자열이므로 공백 정리를 하지 않는다.
func BuildKeySuffix(prefix, id, suffix string) string {
	return prefix + ":" + strings.TrimSpace(id) + ":" + suffix
}
