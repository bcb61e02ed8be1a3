// Package provider 管理进程级加密提供者
//
// 任何 Identity 构造之前必须显式安装一次提供者。重复安装同名提供者
// 是幂等的；在已安装的情况下安装不同提供者会失败。
package provider

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrNotInstalled 尚未安装提供者
	ErrNotInstalled = errors.New("crypto provider not installed")

	// ErrConflictingProvider 已安装不同的提供者
	ErrConflictingProvider = errors.New("conflicting crypto provider already installed")

	// ErrInvalidProvider 提供者缺少必要字段
	ErrInvalidProvider = errors.New("invalid crypto provider")
)

// Provider 加密提供者
type Provider struct {
	// Name 唯一名称，用于判断重复安装是否冲突
	Name string

	// Rand 随机源
	Rand io.Reader

	// KeyGen 生成证书签名私钥
	KeyGen func(rand io.Reader) (crypto.Signer, error)
}

// GenerateKey 使用提供者的随机源生成私钥
func (p Provider) GenerateKey() (crypto.Signer, error) {
	key, err := p.KeyGen(p.Rand)
	if err != nil {
		return nil, fmt.Errorf("%s: generate key: %w", p.Name, err)
	}
	return key, nil
}

func (p Provider) validate() error {
	if p.Name == "" || p.Rand == nil || p.KeyGen == nil {
		return ErrInvalidProvider
	}
	return nil
}

// ECDSAP256 基于 crypto/rand 与 P-256 的默认提供者
func ECDSAP256() Provider {
	return Provider{
		Name: "ecdsa-p256",
		Rand: rand.Reader,
		KeyGen: func(r io.Reader) (crypto.Signer, error) {
			return ecdsa.GenerateKey(elliptic.P256(), r)
		},
	}
}

// Ed25519 基于 crypto/rand 与 Ed25519 的提供者
func Ed25519() Provider {
	return Provider{
		Name: "ed25519",
		Rand: rand.Reader,
		KeyGen: func(r io.Reader) (crypto.Signer, error) {
			_, priv, err := ed25519.GenerateKey(r)
			if err != nil {
				return nil, err
			}
			return priv, nil
		},
	}
}

var (
	mu        sync.RWMutex
	installed *Provider
)

// Install 安装进程级提供者
func Install(p Provider) error {
	if err := p.validate(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if installed != nil {
		if installed.Name == p.Name {
			return nil
		}
		return fmt.Errorf("%w: have %s, want %s", ErrConflictingProvider, installed.Name, p.Name)
	}
	installed = &p
	return nil
}

// MustInstallDefault 安装默认提供者，冲突时 panic
//
// 仅用于进程启动阶段。
func MustInstallDefault() {
	if err := Install(ECDSAP256()); err != nil {
		panic(err)
	}
}

// Current 返回已安装的提供者
func Current() (Provider, error) {
	mu.RLock()
	defer mu.RUnlock()

	if installed == nil {
		return Provider{}, ErrNotInstalled
	}
	return *installed, nil
}

// reset 清除已安装的提供者，仅供测试使用
func reset() {
	mu.Lock()
	installed = nil
	mu.Unlock()
}
