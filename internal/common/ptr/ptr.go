// Package ptr 는 리터럴 값의 포인터를 만드는 도우미를 제공한다.
package ptr

// String: 문자열 포인터를 만든다.
func String(v string) *string { return &v }

// Of 는 임의 값의 포인터를 만든다.
func Of[T any](v T) *T { return &v }
