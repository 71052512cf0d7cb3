package api

import "time"

// HealthResponse 公共健康检查响应
type HealthResponse struct {
	Message string `json:"message"`
}

// PrivateInfoResponse 受保护接口响应，email 来自 provider 的 userinfo
type PrivateInfoResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// Problem RFC 7807 风格的错误负载（application/problem+json）
type Problem struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
