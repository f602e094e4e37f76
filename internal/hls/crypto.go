// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

var (
	ErrKeyLength    = errors.New("aes-128 key must be 16 bytes")
	ErrBadIV        = errors.New("invalid initialization vector")
	ErrBadPadding   = errors.New("invalid pkcs7 padding")
	ErrCipherLength = errors.New("ciphertext is not a multiple of the block size")
)

// KeyCache fetches AES-128 keys once per key URI for the duration of a run.
// Concurrent lookups of the same URI share one request.
type KeyCache struct {
	Fetcher *Fetcher

	mu    sync.Mutex
	keys  map[string][]byte
	group singleflight.Group
}

// Get returns the key at uri, fetching it on first use.
func (c *KeyCache) Get(ctx context.Context, uri string) ([]byte, error) {
	c.mu.Lock()
	if k, ok := c.keys[uri]; ok {
		c.mu.Unlock()
		return k, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(uri, func() (any, error) {
		return c.fetch(ctx, uri)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *KeyCache) fetch(ctx context.Context, uri string) ([]byte, error) {
	timeout := c.Fetcher.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	key, _, err := httpx.Fetch(ctx, c.Fetcher.Client, uri, c.Fetcher.Header, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch key: %w", err)
	}
	if len(key) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}

	c.mu.Lock()
	if c.keys == nil {
		c.keys = make(map[string][]byte)
	}
	c.keys[uri] = key
	c.mu.Unlock()
	return key, nil
}

// ParseIV decodes a playlist IV attribute (0x-prefixed hex). An empty value
// yields the big-endian media sequence number.
func ParseIV(attr string, sequence uint64) ([]byte, error) {
	if attr == "" {
		iv := make([]byte, aes.BlockSize)
		binary.BigEndian.PutUint64(iv[8:], sequence)
		return iv, nil
	}
	s := strings.TrimPrefix(strings.TrimPrefix(attr, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) > aes.BlockSize {
		return nil, fmt.Errorf("%w: %q", ErrBadIV, attr)
	}
	iv := make([]byte, aes.BlockSize)
	copy(iv[aes.BlockSize-len(raw):], raw)
	return iv, nil
}

// DecryptAES128 decrypts an AES-128-CBC segment and strips PKCS#7 padding.
func DecryptAES128(data, key, iv []byte) ([]byte, error) {
	if len(key) != aes.BlockSize {
		return nil, ErrKeyLength
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrBadIV
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrCipherLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, ErrBadPadding
	}
	if !bytes.Equal(out[len(out)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, ErrBadPadding
	}
	return out[:len(out)-pad], nil
}
