// SPDX-License-Identifier: Apache-2.0

// Package primitive declares the opaque capability this library delegates
// all block-cipher work to. The concrete cryptographic primitive
// provider is explicitly out of scope for the core protocol engine
// (spec.md §1); this package defines only the contract the TC Apply and
// Process pipelines call through.
package primitive

import "context"

// Provider exposes the five cryptographic operations the core needs.
// Implementations are expected to be stateless per call: key and IV are
// always passed in, never cached.
type Provider interface {
	// AEADEncrypt encrypts plaintext under key/iv, authenticating aad,
	// and returns the ciphertext (same length as plaintext) and the
	// authentication tag.
	AEADEncrypt(ctx context.Context, key, iv, aad, plaintext []byte) (ciphertext, tag []byte, err error)

	// AEADDecryptAndVerify decrypts ciphertext under key/iv, verifying
	// tag against aad, and returns the plaintext. It must not return any
	// plaintext bytes if verification fails.
	AEADDecryptAndVerify(ctx context.Context, key, iv, aad, ciphertext, tag []byte) (plaintext []byte, err error)

	// AEADTagOnly computes an authentication tag over aad and plaintext
	// without encrypting, for the EST=0,AST=1 AEAD-suite-as-MAC path.
	AEADTagOnly(ctx context.Context, key, iv, aad, plaintext []byte) (tag []byte, err error)

	// MACVerify computes a MAC over aad and message under key and
	// compares it in constant time against tag.
	MACVerify(ctx context.Context, key, aad, message, tag []byte) (ok bool, err error)

	// MACGenerate computes a MAC over aad and message under key, for the
	// pure-authentication (EST=0, AST=1, non-AEAD) Apply path.
	MACGenerate(ctx context.Context, key, aad, message []byte) (tag []byte, err error)
}

// ErrTagMismatch is returned by AEADDecryptAndVerify implementations when
// the supplied tag fails verification. MACVerify reports a mismatch
// through its ok result instead.
type ErrTagMismatch struct{}

func (ErrTagMismatch) Error() string { return "primitive: authentication tag mismatch" }
