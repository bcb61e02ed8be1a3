package listener

import (
	"context"
	"fmt"
)

// Handler 由请求载荷计算响应载荷
//
// 返回错误时该流被重置，连接上的其他流不受影响。
type Handler func(ctx context.Context, request []byte) ([]byte, error)

// GreetingHandler 返回固定问候 "Hello from server {name}"
func GreetingHandler(name string) Handler {
	greeting := []byte(fmt.Sprintf("Hello from server %s", name))
	return func(context.Context, []byte) ([]byte, error) {
		return greeting, nil
	}
}

// EchoHandler 原样返回请求
func EchoHandler(_ context.Context, request []byte) ([]byte, error) {
	return request, nil
}
