// Package truststore 实现发起端的证书信任库
//
// 信任库只增不减：Add 按 SHA-256 指纹去重，重复添加同一证书不报错也不改变
// 成员集合。ClientTLSConfig 每次基于当前全部成员重建根证书池；空信任库
// 不信任任何证书（绝不回退到系统根证书）。
package truststore

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidCertificate 证书无法解析
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrNoCertificateInPEM PEM 数据中没有证书块
	ErrNoCertificateInPEM = errors.New("no CERTIFICATE block in PEM data")
)

// Store 信任库
type Store struct {
	mu    sync.RWMutex
	certs map[string]*x509.Certificate // 指纹 -> 证书
	order []string                     // 添加顺序
}

// New 创建空信任库
func New() *Store {
	return &Store{certs: make(map[string]*x509.Certificate)}
}

// Add 添加 DER 编码证书
//
// 返回 added=false 表示证书已在库中。
func (s *Store) Add(der []byte) (bool, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	fp := fingerprint(cert.Raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.certs[fp]; ok {
		return false, nil
	}
	s.certs[fp] = cert
	s.order = append(s.order, fp)
	return true, nil
}

// AddPEM 添加 PEM 数据中的全部证书，返回新增数量
func (s *Store) AddPEM(data []byte) (int, error) {
	added := 0
	found := false
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		found = true
		ok, err := s.Add(block.Bytes)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	if !found {
		return 0, ErrNoCertificateInPEM
	}
	return added, nil
}

// Contains 检查证书是否已受信任
func (s *Store) Contains(der []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.certs[fingerprint(der)]
	return ok
}

// Len 返回受信任证书数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Fingerprints 返回全部指纹（按字典序）
func (s *Store) Fingerprints() []string {
	s.mu.RLock()
	out := append([]string(nil), s.order...)
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Pool 基于当前成员构造根证书池
func (s *Store) Pool() *x509.CertPool {
	pool := x509.NewCertPool()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, fp := range s.order {
		pool.AddCert(s.certs[fp])
	}
	return pool
}

// ClientTLSConfig 基于当前成员构造发起端 TLS 配置
//
// ServerName 由发起端在每次拨号时设置。
func (s *Store) ClientTLSConfig(nextProtos ...string) *tls.Config {
	return &tls.Config{
		RootCAs:    s.Pool(),
		NextProtos: append([]string(nil), nextProtos...),
		MinVersion: tls.VersionTLS13,
	}
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
