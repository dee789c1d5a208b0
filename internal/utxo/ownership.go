package utxo

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/arcsign/signcore/internal/crypto"
)

// SLIP-19 ownership proof wire format:
//
//	versionMagic || flags || n_ids || id* || scriptSig_len || scriptSig || witness
var (
	ErrOwnershipProofTruncated = errors.New("utxo: ownership proof truncated")
	ErrOwnershipProofInvalid   = errors.New("utxo: ownership proof signature invalid")
	ErrOwnsInput               = errors.New("utxo: refusing to sign against our own ownership id")
)

// OwnershipProof is a parsed SLIP-19 proof.
type OwnershipProof struct {
	VersionMagic []byte
	Flags        byte
	OwnershipIDs [][]byte
	ScriptSig    []byte
	Witness      []byte
}

// ParseOwnershipProof decodes the wire format above.
func ParseOwnershipProof(raw []byte) (OwnershipProof, error) {
	var p OwnershipProof
	if len(raw) < 4+1+1 {
		return p, ErrOwnershipProofTruncated
	}
	p.VersionMagic = raw[:4]
	p.Flags = raw[4]
	nIDs := int(raw[5])
	off := 6
	for i := 0; i < nIDs; i++ {
		if off+32 > len(raw) {
			return p, ErrOwnershipProofTruncated
		}
		p.OwnershipIDs = append(p.OwnershipIDs, raw[off:off+32])
		off += 32
	}
	if off >= len(raw) {
		return p, ErrOwnershipProofTruncated
	}
	scriptSigLen := int(raw[off])
	off++
	if off+scriptSigLen > len(raw) {
		return p, ErrOwnershipProofTruncated
	}
	p.ScriptSig = raw[off : off+scriptSigLen]
	off += scriptSigLen
	p.Witness = raw[off:]
	return p, nil
}

// VerifyOwnershipProof recomputes double SHA-256 over
// (proof_body || scriptPubKey || commitment_data), then checks a single
// signature against scriptPubKey (P2WPKH ECDSA or P2TR Schnorr).
// isOwnID reports whether one of the proof's ownership ids belongs to
// this device; a match aborts unless allowSelfOwnership is set (the
// caller explicitly requested a non-ownership proof).
func VerifyOwnershipProof(proof OwnershipProof, proofBody, scriptPubKey, commitmentData []byte, allowSelfOwnership bool, isOwnID func([]byte) bool) error {
	if !allowSelfOwnership {
		for _, id := range proof.OwnershipIDs {
			if isOwnID != nil && isOwnID(id) {
				return ErrOwnsInput
			}
		}
	}

	digest := crypto.Sha256d(bytes.Join([][]byte{proofBody, scriptPubKey, commitmentData}, nil))

	switch {
	case len(scriptPubKey) == 22 && scriptPubKey[0] == 0x00 && scriptPubKey[1] == 0x14:
		// P2WPKH: witness = [sig, pubkey]
		sig, pub, werr := splitP2WPKHWitness(proof.Witness)
		if werr != nil {
			return werr
		}
		pk, perr := btcec.ParsePubKey(pub)
		if perr != nil {
			return ErrOwnershipProofInvalid
		}
		var sigArr [64]byte
		if len(sig) < 64 {
			return ErrOwnershipProofInvalid
		}
		copy(sigArr[:], sig[:64])
		if !crypto.EcdsaVerifyDigest(pk, sigArr, digest[:]) {
			return ErrOwnershipProofInvalid
		}
		return nil

	case len(scriptPubKey) == 34 && scriptPubKey[0] == 0x51 && scriptPubKey[1] == 0x20:
		// P2TR: witness = [sig]
		if len(proof.Witness) < 64 {
			return ErrOwnershipProofInvalid
		}
		xOnly := scriptPubKey[2:34]
		pk, perr := btcec.ParsePubKey(append([]byte{0x02}, xOnly...))
		if perr != nil {
			return ErrOwnershipProofInvalid
		}
		var sigArr [64]byte
		copy(sigArr[:], proof.Witness[:64])
		if !crypto.SchnorrVerify(sigArr, pk, digest[:]) {
			return ErrOwnershipProofInvalid
		}
		return nil

	default:
		return ErrOwnershipProofInvalid
	}
}

func splitP2WPKHWitness(witness []byte) (sig, pub []byte, err error) {
	if len(witness) < 1 {
		return nil, nil, ErrOwnershipProofTruncated
	}
	sigLen := int(witness[0])
	if 1+sigLen >= len(witness) {
		return nil, nil, ErrOwnershipProofTruncated
	}
	sig = witness[1 : 1+sigLen]
	rest := witness[1+sigLen:]
	if len(rest) < 1 {
		return nil, nil, ErrOwnershipProofTruncated
	}
	pubLen := int(rest[0])
	if 1+pubLen > len(rest) {
		return nil, nil, ErrOwnershipProofTruncated
	}
	pub = rest[1 : 1+pubLen]
	return sig, pub, nil
}
