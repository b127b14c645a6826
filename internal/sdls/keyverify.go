// SPDX-License-Identifier: Apache-2.0

package sdls

import (
	"context"
	"encoding/binary"

	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
)

// KeyVerifyRequest is the decoded body of a Key-Management/Key-Verification
// challenge (spec.md §4.7.2): a session key id, a base IV, and one or
// more opaque challenge plaintexts. Per-challenge IVs are derived by
// XORing the base IV with the big-endian challenge index so that a
// single request can verify a key against several challenges without
// ever reusing an IV.
type KeyVerifyRequest struct {
	EKID       uint16
	IVBase     []byte
	Challenges [][]byte
}

// ChallengeResponse pairs one challenge's ciphertext and authentication
// tag with the IV actually used to produce it.
type ChallengeResponse struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// ProcessKeyVerify encrypts and tags each challenge under the ACTIVE
// session key named by EKID, proving possession of the key without
// revealing it. A ground system compares the returned ciphertexts
// against its own computation to confirm the spacecraft installed the
// key OTAR delivered.
func ProcessKeyVerify(ctx context.Context, keys *keyring.Ring, prim primitive.Provider, req KeyVerifyRequest) ([]ChallengeResponse, Status) {
	if len(req.IVBase) == 0 {
		return nil, ChallengeLenInvalid
	}
	key, err := keys.RequireActive(req.EKID)
	if err != nil {
		return nil, KeyTransitionInvalid
	}

	out := make([]ChallengeResponse, 0, len(req.Challenges))
	for i, ch := range req.Challenges {
		iv := deriveChallengeIV(req.IVBase, i)
		ct, tag, cerr := prim.AEADEncrypt(ctx, key, iv, nil, ch)
		if cerr != nil {
			return nil, OTARDecryptFailed
		}
		out = append(out, ChallengeResponse{IV: iv, Ciphertext: ct, Tag: tag})
	}
	return out, Success
}

// deriveChallengeIV XORs index, big-endian, into the low-order bytes of
// base and returns a fresh copy.
func deriveChallengeIV(base []byte, index int) []byte {
	iv := append([]byte(nil), base...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	for i := 0; i < len(iv) && i < len(idx); i++ {
		iv[len(iv)-1-i] ^= idx[len(idx)-1-i]
	}
	return iv
}
