package identity

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-qsession/internal/core/provider"
)

func TestMain(m *testing.M) {
	provider.MustInstallDefault()
	os.Exit(m.Run())
}

func TestGenerate_DefaultHostname(t *testing.T) {
	id, err := Generate("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHostname, id.Hostname())

	cert, err := x509.ParseCertificate(id.Certificate())
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	assert.NoError(t, cert.VerifyHostname("localhost"))
	assert.Error(t, cert.VerifyHostname("example.com"))
}

func TestGenerate_IPHostname(t *testing.T) {
	id, err := Generate("127.0.0.1")
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(id.Certificate())
	require.NoError(t, err)
	require.Len(t, cert.IPAddresses, 1)
	assert.True(t, cert.IPAddresses[0].Equal(net.IPv4(127, 0, 0, 1)))
	assert.Empty(t, cert.DNSNames)
}

func TestGenerate_SelfSigned(t *testing.T) {
	id, err := Generate("node.test")
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(id.Certificate())
	require.NoError(t, err)

	// 证书自身即为信任根
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	_, err = cert.Verify(x509.VerifyOptions{
		DNSName: "node.test",
		Roots:   pool,
	})
	assert.NoError(t, err)
	assert.True(t, id.NotAfter().After(time.Now()))
}

func TestGenerate_Fresh(t *testing.T) {
	a, err := Generate("localhost")
	require.NoError(t, err)
	b, err := Generate("localhost")
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Certificate(), b.Certificate())
}

func TestCertificate_ReturnsCopy(t *testing.T) {
	id, err := Generate("localhost")
	require.NoError(t, err)

	der := id.Certificate()
	der[0] ^= 0xff
	assert.NotEqual(t, der, id.Certificate())
	assert.Equal(t, Fingerprint(id.Certificate()), id.Fingerprint())
}

func TestCertificatePEM(t *testing.T) {
	id, err := Generate("localhost")
	require.NoError(t, err)

	block, rest := pem.Decode(id.CertificatePEM())
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "CERTIFICATE", block.Type)
	assert.Equal(t, id.Certificate(), block.Bytes)
}

func TestServerTLSConfig(t *testing.T) {
	id, err := Generate("localhost")
	require.NoError(t, err)

	conf := id.ServerTLSConfig("qsession/1")
	require.Len(t, conf.Certificates, 1)
	assert.Equal(t, id.Certificate(), conf.Certificates[0].Certificate[0])
	assert.NotNil(t, conf.Certificates[0].PrivateKey)
	assert.Equal(t, []string{"qsession/1"}, conf.NextProtos)
}

func TestGenerate_ProviderUnavailable(t *testing.T) {
	provider.ResetForTesting()
	defer provider.MustInstallDefault()

	_, err := Generate("localhost")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, provider.ErrNotInstalled)
}

func TestGenerate_Ed25519Provider(t *testing.T) {
	provider.ResetForTesting()
	require.NoError(t, provider.Install(provider.Ed25519()))
	defer func() {
		provider.ResetForTesting()
		provider.MustInstallDefault()
	}()

	id, err := Generate("localhost")
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(id.Certificate())
	require.NoError(t, err)
	assert.Equal(t, x509.Ed25519, cert.PublicKeyAlgorithm)
}
