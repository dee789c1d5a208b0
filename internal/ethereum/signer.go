package ethereum

import (
	"context"
	"errors"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/crypto"
	"github.com/arcsign/signcore/internal/protocol"
)

// KeyProvider derives the secp256k1 node for an Ethereum signing
// flow's BIP32 path, mirroring utxo.KeyProvider.
type KeyProvider func(path []uint32) (*bip32.Node, error)

var (
	// ErrSignerCancelled reports a mid-flow Cancel observed by WatchCancel.
	ErrSignerCancelled = errors.New("ethereum: signing cancelled")
	// ErrSignerReinitialized reports a mid-flow Initialize observed by WatchCancel.
	ErrSignerReinitialized = errors.New("ethereum: signing interrupted by re-initialize")
)

// Signer drives one Ethereum SigningContext through its streamed
// data-chunk loop, surfacing confirmations via collab.UI and watching
// for cancellation via protocol.WatchCancel the same way utxo.Signer
// does for the UTXO engine.
type Signer struct {
	Ctx  *SigningContext
	ui   collab.UI
	bus  *protocol.Bus
	keys KeyProvider
}

// NewSigner starts a driver over a freshly opened SigningContext.
func NewSigner(ctx *SigningContext, ui collab.UI, bus *protocol.Bus, keys KeyProvider) *Signer {
	return &Signer{Ctx: ctx, ui: ui, bus: bus, keys: keys}
}

func (s *Signer) checkCancel() error {
	if s.bus == nil {
		return nil
	}
	cancelled, reinit := protocol.WatchCancel(s.bus)
	if cancelled {
		return ErrSignerCancelled
	}
	if reinit {
		return ErrSignerReinitialized
	}
	return nil
}

// FeedData streams one chunk of the transaction's data field into the
// running hash, returning the number of bytes still owed.
func (s *Signer) FeedData(chunk []byte) (uint32, error) {
	if err := s.checkCancel(); err != nil {
		return 0, err
	}
	if err := s.Ctx.Feed(chunk); err != nil {
		return 0, err
	}
	return s.Ctx.DataRemaining(), nil
}

// Finish confirms the transaction with the user, then
// signs the finished digest and returns the wire signature.
func (s *Signer) Finish(ctx context.Context, to [20]byte, value []byte, dataPrefix []byte, confirmText string) (*protocol.EthereumSignature, error) {
	if err := s.checkCancel(); err != nil {
		return nil, err
	}

	kind := collab.ConfirmOutput
	text := confirmText
	if token, ok := LookupToken(s.Ctx.ChainID, to); ok {
		if recipient, amount, isTransfer := DecodeERC20Transfer(dataPrefix); isTransfer {
			kind = collab.ConfirmToken
			text = token.RenderTransfer(recipient, amount)
		}
	}

	ok, f := protocol.ProtectButton(ctx, s.ui, kind, text)
	if !ok {
		return nil, f
	}

	digest, err := s.Ctx.Finish()
	if err != nil {
		return nil, err
	}

	node, err := s.keys(s.Ctx.AddressN)
	if err != nil {
		return nil, err
	}
	priv, err := node.ECPrivateKey()
	if err != nil {
		return nil, err
	}

	sig, recID, err := crypto.EcdsaSignDigest(priv, digest[:], func(recID byte) bool { return recID&2 == 0 })
	if err != nil {
		return nil, err
	}

	return &protocol.EthereumSignature{
		V: s.Ctx.SignatureV(recID),
		R: append([]byte(nil), sig[:32]...),
		S: append([]byte(nil), sig[32:]...),
	}, nil
}
