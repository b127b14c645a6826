// SPDX-License-Identifier: Apache-2.0

// Package aesprimitive is a reference implementation of the
// primitive.Provider contract used by this library's own tests. It is
// not part of the protocol core (spec.md §1 places the concrete
// cryptographic primitive provider out of scope) and mission software
// is expected to supply its own FIPS-validated provider instead.
package aesprimitive

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/spacedatalink/sdls-core/internal/primitive"
)

// Provider implements primitive.Provider with AES-256-GCM for AEAD
// operations and AES-CMAC (RFC 4493) for pure authentication.
type Provider struct{}

var _ primitive.Provider = Provider{}

func (Provider) AEADEncrypt(_ context.Context, key, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	tagLen := aead.Overhead()
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]
	return ciphertext, tag, nil
}

func (Provider) AEADDecryptAndVerify(_ context.Context, key, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, primitive.ErrTagMismatch{}
	}
	return plaintext, nil
}

func (Provider) AEADTagOnly(_ context.Context, key, iv, aad, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	return sealed[len(sealed)-aead.Overhead():], nil
}

func (Provider) MACVerify(_ context.Context, key, aad, message, tag []byte) (bool, error) {
	got, err := cmac(key, append(append([]byte(nil), aad...), message...))
	if err != nil {
		return false, err
	}
	n := len(tag)
	if n > len(got) {
		n = len(got)
	}
	return subtle.ConstantTimeCompare(got[:n], tag) == 1, nil
}

func (Provider) MACGenerate(_ context.Context, key, aad, message []byte) ([]byte, error) {
	return cmac(key, append(append([]byte(nil), aad...), message...))
}

func newGCM(key []byte, ivLen int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aesprimitive: %w", err)
	}
	if ivLen == 0 {
		ivLen = 12
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("aesprimitive: %w", err)
	}
	return aead, nil
}

// cmac computes AES-CMAC (RFC 4493) over msg under key.
func cmac(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aesprimitive: %w", err)
	}
	k1, k2 := subkeys(block)

	const blockSize = aes.BlockSize
	var padded bool
	n := len(msg)
	var lastBlock []byte

	if n == 0 || n%blockSize != 0 {
		padded = true
		padLen := blockSize - n%blockSize
		lastBlock = append(append([]byte(nil), msg[n-(n%blockSize):]...), 0x80)
		lastBlock = append(lastBlock, bytes.Repeat([]byte{0x00}, padLen-1)...)
	} else {
		lastBlock = append([]byte(nil), msg[n-blockSize:]...)
	}

	subkey := k1
	if padded {
		subkey = k2
	}
	xorBlock(lastBlock, subkey)

	mac := make([]byte, blockSize)
	off := 0
	fullBlocks := n / blockSize
	if padded {
		// all but the final, now-replaced partial block
	} else {
		fullBlocks--
	}
	for i := 0; i < fullBlocks; i++ {
		xorBlock(mac, msg[off:off+blockSize])
		block.Encrypt(mac, mac)
		off += blockSize
	}
	xorBlock(mac, lastBlock)
	block.Encrypt(mac, mac)
	return mac, nil
}

func subkeys(block cipher.Block) (k1, k2 []byte) {
	zero := make([]byte, aes.BlockSize)
	l := make([]byte, aes.BlockSize)
	block.Encrypt(l, zero)

	k1 = leftShiftOne(l)
	if l[0]&0x80 != 0 {
		k1[len(k1)-1] ^= 0x87
	}
	k2 = leftShiftOne(k1)
	if k1[0]&0x80 != 0 {
		k2[len(k2)-1] ^= 0x87
	}
	return k1, k2
}

func leftShiftOne(in []byte) []byte {
	out := make([]byte, len(in))
	var carry byte
	for i := len(in) - 1; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	return out
}

func xorBlock(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
