package tlsutil

import (
	"crypto/tls"
	"net/http"
	"slices"
	"time"
)

// TLS 1.3 套件不可配置且全部为 AEAD，这里只约束 1.2
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 每次返回新实例，调用方可以自由修改
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: slices.Clone(aeadSuites),
	}
}

// SecureTransport 以 http.DefaultTransport 为基础（保留代理与拨号设置），替换 TLS 配置并收紧每主机空闲连接
func SecureTransport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = DefaultTLSConfig()
	tr.MaxIdleConnsPerHost = 10
	return tr
}

// SecureHTTPClient timeout 为 0 时只受请求 ctx 约束
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: SecureTransport()}
}
