package truststore

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-qsession/internal/core/identity"
	"github.com/dep2p/go-qsession/internal/core/provider"
)

func TestMain(m *testing.M) {
	provider.MustInstallDefault()
	os.Exit(m.Run())
}

func newCert(t *testing.T, hostname string) []byte {
	t.Helper()
	id, err := identity.Generate(hostname)
	require.NoError(t, err)
	return id.Certificate()
}

func TestStore_Empty(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Fingerprints())

	conf := s.ClientTLSConfig("qsession/1")
	require.NotNil(t, conf.RootCAs)
	assert.Equal(t, []string{"qsession/1"}, conf.NextProtos)

	// 空信任库不接受任何证书
	cert, err := x509.ParseCertificate(newCert(t, "localhost"))
	require.NoError(t, err)
	_, err = cert.Verify(x509.VerifyOptions{Roots: conf.RootCAs, DNSName: "localhost"})
	assert.Error(t, err)
}

func TestStore_AddIdempotent(t *testing.T) {
	s := New()
	der := newCert(t, "localhost")

	added, err := s.Add(der)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(der)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(der))
	assert.Equal(t, []string{identity.Fingerprint(der)}, s.Fingerprints())
}

func TestStore_AddInvalid(t *testing.T) {
	s := New()
	_, err := s.Add([]byte("not a certificate"))
	assert.ErrorIs(t, err, ErrInvalidCertificate)
	assert.Equal(t, 0, s.Len())
}

func TestStore_PoolVerifies(t *testing.T) {
	s := New()
	a := newCert(t, "localhost")
	b := newCert(t, "localhost")
	_, err := s.Add(a)
	require.NoError(t, err)

	pool := s.Pool()

	certA, err := x509.ParseCertificate(a)
	require.NoError(t, err)
	certB, err := x509.ParseCertificate(b)
	require.NoError(t, err)

	_, err = certA.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"})
	assert.NoError(t, err)
	_, err = certB.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"})
	assert.Error(t, err, "未导入的证书不应通过验证")
	_, err = certA.Verify(x509.VerifyOptions{Roots: pool, DNSName: "other.test"})
	assert.Error(t, err, "主机名不匹配应失败")
}

func TestStore_AddPEM(t *testing.T) {
	s := New()
	a := newCert(t, "localhost")
	b := newCert(t, "localhost")

	var data []byte
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("x")})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: b})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a})...)

	n, err := s.AddPEM(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Len())

	_, err = s.AddPEM([]byte("garbage"))
	assert.ErrorIs(t, err, ErrNoCertificateInPEM)
}

func TestStore_ConcurrentAdd(t *testing.T) {
	s := New()
	der := newCert(t, "localhost")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(der)
			assert.NoError(t, err)
			_ = s.ClientTLSConfig()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Len())
}
