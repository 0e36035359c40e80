package httputil

import (
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	// ContentTypeJSON 은 JSON 응답의 Content-Type 값이다.
	ContentTypeJSON = "application/json"
	// HeaderContentType 은 Content-Type 헤더 이름이다.
	HeaderContentType = "Content-Type"
)

// WriteJSON 은 v를 JSON으로 인코딩해 status와 함께 응답한다.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json failed: %w", err)
	}
	return nil
}

// ErrorResponse 는 운영 API가 내려주는 에러 바디다.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteErrorJSON 은 에러 코드와 메시지를 ErrorResponse 형태로 내려준다.
func WriteErrorJSON(w http.ResponseWriter, status int, code string, message string) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   strings.TrimSpace(code),
		Message: strings.TrimSpace(message),
	})
}
