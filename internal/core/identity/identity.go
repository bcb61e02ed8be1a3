package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/dep2p/go-qsession/internal/core/provider"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// DefaultHostname 未指定主机名时使用
const DefaultHostname = "localhost"

// certValidity 证书有效期
const certValidity = 365 * 24 * time.Hour

// Identity 监听端身份
type Identity struct {
	hostname    string
	certDER     []byte
	leaf        *x509.Certificate
	key         crypto.Signer
	fingerprint string
}

// Generate 生成绑定到 hostname 的自签名身份
//
// hostname 为空时使用 "localhost"；IP 字面量写入 IP SAN，其余写入 DNS SAN。
// 未安装加密提供者时返回 ErrProviderUnavailable。
func Generate(hostname string) (*Identity, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		hostname = DefaultHostname
	}

	p, err := provider.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	key, err := p.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToGenerateKey, err)
	}

	serial, err := rand.Int(p.Rand, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("%w: serial: %w", ErrFailedToCreateCertificate, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"qsession"},
			CommonName:   hostname,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{hostname}
	}

	der, err := x509.CreateCertificate(p.Rand, template, template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToCreateCertificate, err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrFailedToCreateCertificate, err)
	}

	id := &Identity{
		hostname:    hostname,
		certDER:     der,
		leaf:        leaf,
		key:         key,
		fingerprint: Fingerprint(der),
	}
	logger.Debug("生成自签名身份", "hostname", hostname, "fingerprint", log.TruncateID(id.fingerprint, 16), "provider", p.Name)
	return id, nil
}

// Certificate 返回 DER 编码证书的副本
func (id *Identity) Certificate() []byte {
	out := make([]byte, len(id.certDER))
	copy(out, id.certDER)
	return out
}

// CertificatePEM 返回 PEM 编码证书，便于带外分发
func (id *Identity) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.certDER})
}

// Hostname 返回证书绑定的主机名
func (id *Identity) Hostname() string {
	return id.hostname
}

// Fingerprint 返回证书 SHA-256 指纹（十六进制）
func (id *Identity) Fingerprint() string {
	return id.fingerprint
}

// NotAfter 返回证书过期时间
func (id *Identity) NotAfter() time.Time {
	return id.leaf.NotAfter
}

// ServerTLSConfig 构造监听端 TLS 配置
//
// 这是私钥离开 Identity 的唯一途径。
func (id *Identity) ServerTLSConfig(nextProtos ...string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{id.certDER},
			PrivateKey:  id.key,
			Leaf:        id.leaf,
		}},
		NextProtos: append([]string(nil), nextProtos...),
		MinVersion: tls.VersionTLS13,
	}
}

// Fingerprint 计算 DER 证书的 SHA-256 指纹
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
