// Package bip32 implements the key hierarchy component (C2): seed-to-node
// derivation, child key derivation across the curves the signing engines
// need, a derivation-path cache, and the address encoders used during
// transaction confirmation.
package bip32

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anyproto/go-slip10"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/arcsign/signcore/internal/crypto"
)

// Curve identifies which signature scheme a Node's key material belongs
// to. Derivation never returns a node whose curve does not match the
// caller's declared curve.
type Curve int

const (
	CurveSecp256k1 Curve = iota
	CurveEd25519
)

func (c Curve) String() string {
	switch c {
	case CurveSecp256k1:
		return "secp256k1"
	case CurveEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// HardenedKeyStart is BIP32's offset at which child indices become
// hardened derivation requests. Re-exported from hdkeychain so callers
// outside this package never need the secp256k1-specific import.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

var (
	// ErrCurveMismatch is returned when a derivation or key-extraction
	// call is made against a Node of the wrong curve.
	ErrCurveMismatch = errors.New("bip32: operation not valid for this node's curve")
	// ErrEd25519HardenedOnly is returned when a normal (non-hardened)
	// index is requested against an ed25519 node; SLIP-10 only defines
	// hardened derivation for ed25519.
	ErrEd25519HardenedOnly = errors.New("bip32: ed25519 derivation requires a hardened index")
)

// Node is a single point in the key hierarchy: a depth, a child number,
// a 32-byte chain code, private/public key material, and the curve that
// material belongs to. Private material is scrubbed when Scrub is
// called; the handler that derives a Node owns its lifetime and must
// call Scrub on exit, on lock, and on cancellation.
type Node struct {
	curve       Curve
	depth       byte
	childNumber uint32
	chainCode   [32]byte
	privateKey  []byte // 32 bytes (secp256k1); go-slip10's own private-key encoding for ed25519
	publicKey   []byte // 33 bytes (secp256k1, compressed) or 32 bytes (ed25519)

	// ext backs the secp256k1 path; hdkeychain already implements BIP32
	// CKD correctly so this node type defers to it rather than
	// re-implementing point arithmetic.
	ext *hdkeychain.ExtendedKey

	// ed25519Seed/ed25519Path back the ed25519 path: go-slip10 exposes
	// whole-path derivation (DeriveForPath) rather than an incremental
	// CKD step, so each child node keeps the master seed and its own
	// accumulated index path and re-derives through the library on every
	// step instead of hand-rolling HMAC-SHA512 CKD.
	ed25519Seed []byte
	ed25519Path []uint32
}

// NewMasterNode derives the root node for curve from a BIP39 seed
// (16-64 bytes).
func NewMasterNode(seed []byte, curve Curve) (*Node, error) {
	switch curve {
	case CurveSecp256k1:
		if len(seed) < 16 || len(seed) > 64 {
			return nil, fmt.Errorf("bip32: seed must be between 16 and 64 bytes, got %d", len(seed))
		}
		ext, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return nil, fmt.Errorf("bip32: failed to create master key: %w", err)
		}
		return nodeFromExtended(ext)
	case CurveEd25519:
		node, err := slip10.DeriveForPath("m", seed)
		if err != nil {
			return nil, fmt.Errorf("bip32: failed to derive ed25519 master node: %w", err)
		}
		pub, priv := node.Keypair()
		n := &Node{
			curve:       CurveEd25519,
			privateKey:  append([]byte(nil), priv...),
			publicKey:   append([]byte(nil), pub...),
			ed25519Seed: append([]byte(nil), seed...),
		}
		return n, nil
	default:
		return nil, ErrCurveMismatch
	}
}

func nodeFromExtended(ext *hdkeychain.ExtendedKey) (*Node, error) {
	n := &Node{curve: CurveSecp256k1, ext: ext, depth: ext.Depth(), childNumber: ext.ChildIndex()}
	copy(n.chainCode[:], ext.ChainCode())
	if !ext.IsPrivate() {
		pub, err := ext.ECPubKey()
		if err != nil {
			return nil, err
		}
		n.publicKey = pub.SerializeCompressed()
		return n, nil
	}
	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, err
	}
	n.privateKey = priv.Serialize()
	n.publicKey = priv.PubKey().SerializeCompressed()
	return n, nil
}

// Curve reports which signature scheme this node's key material belongs to.
func (n *Node) Curve() Curve { return n.curve }

// Depth reports how many CKD steps separate this node from the root.
func (n *Node) Depth() byte { return n.depth }

// ChildNumber reports the index this node was derived with.
func (n *Node) ChildNumber() uint32 { return n.childNumber }

// ChainCode returns a copy of the 32-byte chain code.
func (n *Node) ChainCode() [32]byte { return n.chainCode }

// PrivateKey returns a copy of the private key: 32 bytes for secp256k1,
// go-slip10's own private-key encoding for ed25519.
func (n *Node) PrivateKey() []byte {
	return append([]byte(nil), n.privateKey...)
}

// PublicKey returns a copy of the public key: 33 bytes compressed for
// secp256k1, 32 bytes for ed25519.
func (n *Node) PublicKey() []byte {
	return append([]byte(nil), n.publicKey...)
}

// ECPrivateKey returns the secp256k1 private key for signing. Returns
// ErrCurveMismatch for ed25519 nodes.
func (n *Node) ECPrivateKey() (*btcec.PrivateKey, error) {
	if n.curve != CurveSecp256k1 {
		return nil, ErrCurveMismatch
	}
	priv, _ := btcec.PrivKeyFromBytes(n.privateKey)
	return priv, nil
}

// ECPublicKey returns the secp256k1 public key. Returns ErrCurveMismatch
// for ed25519 nodes.
func (n *Node) ECPublicKey() (*btcec.PublicKey, error) {
	if n.curve != CurveSecp256k1 {
		return nil, ErrCurveMismatch
	}
	return btcec.ParsePubKey(n.publicKey)
}

// Derive applies one step of child key derivation. index >= HardenedKeyStart
// requests hardened derivation.
func (n *Node) Derive(index uint32) (*Node, error) {
	switch n.curve {
	case CurveSecp256k1:
		if n.ext == nil {
			return nil, ErrCurveMismatch
		}
		child, err := n.ext.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("bip32: failed to derive child at index %d: %w", index, err)
		}
		return nodeFromExtended(child)
	case CurveEd25519:
		if index < HardenedKeyStart {
			return nil, ErrEd25519HardenedOnly
		}
		childPath := append(append([]uint32(nil), n.ed25519Path...), index)
		node, err := slip10.DeriveForPath(slip10PathString(childPath), n.ed25519Seed)
		if err != nil {
			return nil, fmt.Errorf("bip32: failed to derive ed25519 child at index %d: %w", index, err)
		}
		pub, priv := node.Keypair()
		child := &Node{
			curve:       CurveEd25519,
			depth:       n.depth + 1,
			childNumber: index,
			privateKey:  append([]byte(nil), priv...),
			publicKey:   append([]byte(nil), pub...),
			ed25519Seed: append([]byte(nil), n.ed25519Seed...),
			ed25519Path: childPath,
		}
		return child, nil
	default:
		return nil, ErrCurveMismatch
	}
}

// DerivePath walks a parsed derivation path from this node.
func (n *Node) DerivePath(path []uint32) (*Node, error) {
	cur := n
	for _, idx := range path {
		next, err := cur.Derive(idx)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// ExtendedPublicKeyString returns the xpub-style serialization. Only
// defined for secp256k1 nodes.
func (n *Node) ExtendedPublicKeyString() (string, error) {
	if n.curve != CurveSecp256k1 || n.ext == nil {
		return "", ErrCurveMismatch
	}
	pub, err := n.ext.Neuter()
	if err != nil {
		return "", err
	}
	return pub.String(), nil
}

// slip10PathString renders an all-hardened index slice back into the
// "m/44'/0'" form go-slip10's DeriveForPath expects. Every ed25519 index
// passing through Derive has already been checked against
// ErrEd25519HardenedOnly, so HardenedKeyStart is always subtracted back
// out here.
func slip10PathString(path []uint32) string {
	var b strings.Builder
	b.WriteByte('m')
	for _, idx := range path {
		b.WriteByte('/')
		b.WriteString(strconv.FormatUint(uint64(idx-HardenedKeyStart), 10))
		b.WriteByte('\'')
	}
	return b.String()
}

// Scrub zeroises the node's private key and chain code material. Public
// key bytes are not secret and are left intact. Scrub must be called on
// every handler exit, on session lock, and on cancellation.
func (n *Node) Scrub() {
	crypto.Scrub(n.privateKey)
	crypto.Scrub(n.chainCode[:])
	crypto.Scrub(n.ed25519Seed)
	n.ext = nil
}
