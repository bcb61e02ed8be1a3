package provider

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent_NotInstalled(t *testing.T) {
	reset()
	defer reset()

	_, err := Current()
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstall_Idempotent(t *testing.T) {
	reset()
	defer reset()

	require.NoError(t, Install(ECDSAP256()))
	require.NoError(t, Install(ECDSAP256()))

	p, err := Current()
	require.NoError(t, err)
	assert.Equal(t, "ecdsa-p256", p.Name)
}

func TestInstall_Conflict(t *testing.T) {
	reset()
	defer reset()

	require.NoError(t, Install(ECDSAP256()))
	err := Install(Ed25519())
	assert.ErrorIs(t, err, ErrConflictingProvider)

	// 冲突不改变已安装的提供者
	p, err := Current()
	require.NoError(t, err)
	assert.Equal(t, "ecdsa-p256", p.Name)
}

func TestInstall_Invalid(t *testing.T) {
	reset()
	defer reset()

	assert.ErrorIs(t, Install(Provider{Name: "broken"}), ErrInvalidProvider)
	_, err := Current()
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestMustInstallDefault_PanicsOnConflict(t *testing.T) {
	reset()
	defer reset()

	require.NoError(t, Install(Ed25519()))
	assert.Panics(t, MustInstallDefault)
}

func TestGenerateKey(t *testing.T) {
	key, err := ECDSAP256().GenerateKey()
	require.NoError(t, err)
	assert.IsType(t, &ecdsa.PrivateKey{}, key)

	key, err = Ed25519().GenerateKey()
	require.NoError(t, err)
	assert.IsType(t, ed25519.PrivateKey{}, key)
}
