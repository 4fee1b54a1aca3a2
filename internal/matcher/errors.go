package matcher

import "errors"

// BackendError 是识别/混音服务返回的结构化错误。
// Detail 来自服务端错误信封 { "detail": "..." }，直接作为用户可读文案。
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	return e.Detail
}

// ErrUnauthorized 表示服务端以401拒绝了请求。
// 调用方收到它后应把会话重定向到登录。
var ErrUnauthorized = errors.New("识别服务拒绝了当前会话，请重新登录")

// genericDetail 是服务端没有给出detail字段时的兜底文案
const genericDetail = "网络或服务器发生错误，请稍后重试"
