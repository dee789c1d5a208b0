package utxo

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/crypto"
)

func TestBIP143PreimageAndDigestDeterministic(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	ctx := NewSigningContext(d, nil, 1, 1, 0)
	ctx.AccumulateInput([32]byte{1}, 0, 0xffffffff)
	hashPrevouts, hashSequence, _, err := ctx.FinishAccumulators()
	require.NoError(t, err)

	ctx2 := NewSigningContext(d, nil, 1, 1, 0)
	ctx2.AccumulateOutput([]byte{0x00, 0x01, 0x02})
	_, _, hashOutputs, err := ctx2.FinishAccumulators()
	require.NoError(t, err)

	prev := [32]byte{1}
	outpoint := append(append([]byte(nil), reversed(prev[:])...), crypto.PutUint32LE(0)...)
	scriptCode := ScriptCodeP2PKH(make([]byte, 20))

	pre1 := BIP143Preimage(1, hashPrevouts, hashSequence, outpoint, scriptCode, 1000, 0xffffffff, hashOutputs, 0, uint32(SighashAll))
	pre2 := BIP143Preimage(1, hashPrevouts, hashSequence, outpoint, scriptCode, 1000, 0xffffffff, hashOutputs, 0, uint32(SighashAll))
	require.Equal(t, pre1, pre2)

	digest1, err := SighashDigest(d, pre1)
	require.NoError(t, err)
	digest2, err := SighashDigest(d, pre2)
	require.NoError(t, err)
	require.Equal(t, digest1, digest2)

	preDifferentAmount := BIP143Preimage(1, hashPrevouts, hashSequence, outpoint, scriptCode, 2000, 0xffffffff, hashOutputs, 0, uint32(SighashAll))
	require.NotEqual(t, pre1, preDifferentAmount)
}

func TestZcashSighashDigestUsesBlake2bPersonalization(t *testing.T) {
	d, err := coin.ByName("Zcash")
	require.NoError(t, err)

	digest, err := SighashDigest(d, []byte("preimage"))
	require.NoError(t, err)

	btcDescriptor, err := coin.ByName("Bitcoin")
	require.NoError(t, err)
	btcDigest, err := SighashDigest(btcDescriptor, []byte("preimage"))
	require.NoError(t, err)

	require.NotEqual(t, digest, btcDigest)
}

func TestDecredSighashIsBlake256d(t *testing.T) {
	preimage := []byte("decred preimage")
	got := DecredSighash(preimage)
	want := crypto.Blake256d(preimage)
	require.Equal(t, want, got)
}

func TestTaprootKeyPathDigestChangesWithInputIndex(t *testing.T) {
	var zero [32]byte
	a := TaprootKeyPathDigest(2, 0, zero, zero, zero, zero, zero, 0)
	b := TaprootKeyPathDigest(2, 0, zero, zero, zero, zero, zero, 1)
	require.NotEqual(t, a, b)
}

func TestSignTaprootProducesVerifiableSchnorrSignature(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 5)
	}
	node, err := bip32.NewMasterNode(seed, bip32.CurveSecp256k1)
	require.NoError(t, err)

	digest := crypto.Sha256Sum([]byte("taproot spend"))
	sig, err := SignTaproot(node, digest[:])
	require.NoError(t, err)

	pub, err := node.ECPublicKey()
	require.NoError(t, err)
	tweakedXOnly := TaprootOutputKey(pub)

	xOnlyPub, err := btcec.ParsePubKey(append([]byte{0x02}, tweakedXOnly...))
	require.NoError(t, err)
	require.True(t, crypto.SchnorrVerify(sig, xOnlyPub, digest[:]))
}

func TestP2PKHScriptSigAndWitnessStacks(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	digest := crypto.Sha256Sum([]byte("spend"))
	sig, _, err := crypto.EcdsaSignDigest(priv, digest[:], nil)
	require.NoError(t, err)
	pub := priv.PubKey().SerializeCompressed()

	scriptSig := P2PKHScriptSig(sig, byte(SighashAll), pub)
	require.NotEmpty(t, scriptSig)

	stack := WitnessStackP2WPKH(sig, byte(SighashAll), pub)
	require.Len(t, stack, 2)
	require.Equal(t, pub, stack[1])
}

func TestWitnessStackTaprootOmitsSighashByteForDefault(t *testing.T) {
	var sig [64]byte
	for i := range sig {
		sig[i] = byte(i)
	}
	stack := WitnessStackTaproot(sig, SighashAll)
	require.Len(t, stack, 1)
	require.Len(t, stack[0], 64)

	stackWithByte := WitnessStackTaproot(sig, SighashAll|0x80)
	require.Len(t, stackWithByte, 1)
	require.Len(t, stackWithByte[0], 65)
}

func TestMultisigScriptSigOmitsBugByteForDecred(t *testing.T) {
	var sig [64]byte
	redeemScript := []byte{0x51, 0x52, 0xae}

	withBug := MultisigScriptSig([][64]byte{sig}, byte(SighashAll), redeemScript, false)
	withoutBug := MultisigScriptSig([][64]byte{sig}, byte(SighashAll), redeemScript, true)
	require.Greater(t, len(withBug), len(withoutBug))
}

func TestOwnershipProofParseRoundTrip(t *testing.T) {
	raw := []byte{
		'S', 'L', '1', '9', // version magic
		0x00,                   // flags
		0x01,                   // one ownership id
	}
	raw = append(raw, make([]byte, 32)...) // ownership id bytes
	raw = append(raw, 0x03, 0xAA, 0xBB, 0xCC)
	raw = append(raw, 0xDD, 0xEE)

	proof, err := ParseOwnershipProof(raw)
	require.NoError(t, err)
	require.Len(t, proof.OwnershipIDs, 1)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, proof.ScriptSig)
	require.Equal(t, []byte{0xDD, 0xEE}, proof.Witness)
}

func TestOwnershipProofParseTruncated(t *testing.T) {
	_, err := ParseOwnershipProof([]byte{1, 2})
	require.ErrorIs(t, err, ErrOwnershipProofTruncated)
}

func TestVerifyOwnershipProofRejectsOwnID(t *testing.T) {
	proof := OwnershipProof{OwnershipIDs: [][]byte{{0xAB}}}
	err := VerifyOwnershipProof(proof, nil, nil, nil, false, func(id []byte) bool { return true })
	require.ErrorIs(t, err, ErrOwnsInput)
}

func TestVerifyOwnershipProofP2WPKHRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey().SerializeCompressed()

	scriptPubKey := append([]byte{0x00, 0x14}, crypto.Hash160(pub)...)
	proofBody := []byte("proof-body")
	commitment := []byte("commitment")
	digest := crypto.Sha256d(append(append(append([]byte{}, proofBody...), scriptPubKey...), commitment...))

	sig, _, err := crypto.EcdsaSignDigest(priv, digest[:], nil)
	require.NoError(t, err)

	witness := append([]byte{64}, sig[:]...)
	witness = append(witness, byte(len(pub)))
	witness = append(witness, pub...)

	proof := OwnershipProof{Witness: witness}
	err = VerifyOwnershipProof(proof, proofBody, scriptPubKey, commitment, true, nil)
	require.NoError(t, err)
}

func TestIsChangeOutputRejectsMultisigFingerprintMismatch(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	ctx := NewSigningContext(d, nil, 2, 1, 0)
	ctx.ObserveInputPath([]uint32{bip32.HardenedKeyStart + 48, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0})
	ctx.ObserveInputFingerprint([]byte("fingerprint-a"))
	ctx.ObserveInputFingerprint([]byte("fingerprint-b"))
	require.True(t, ctx.MultisigFingerprintMismatch)

	already := false
	change := OutputRecord{Amount: 1, AddressN: []uint32{bip32.HardenedKeyStart + 48, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 1, 0}, ScriptType: bip32.SpendP2SHWitnessMulti}
	require.False(t, ctx.IsChangeOutput(change, bip32.SpendP2SHWitnessMulti, 1000, &already), "a fingerprint mismatch must disable change detection for the whole transaction")
}

// TestSignerSignsP2WSHMultisigInput drives a whole SignTx flow (phase 1
// input/output observation through phase 2 signing) over one
// SpendWitnessMulti input and asserts the resulting witness stack is
// exactly what WitnessStackP2WSH/MultisigRedeemScript would build by
// hand, and that the device's signature verifies against its own
// pubkey over the BIP143 digest of the multisig witness script — not
// the legacyLikeDigest path a plain P2PKH input would take.
func TestSignerSignsP2WSHMultisigInput(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	root, err := bip32.NewMasterNode(testBip32Seed(), bip32.CurveSecp256k1)
	require.NoError(t, err)
	path := []uint32{bip32.HardenedKeyStart + 48, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0}
	ourNode, err := root.DerivePath(path)
	require.NoError(t, err)
	ourPub, err := ourNode.ECPublicKey()
	require.NoError(t, err)

	cosignerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	cosignerPub := cosignerPriv.PubKey()

	pubkeys := [][]byte{ourPub.SerializeCompressed(), cosignerPub.SerializeCompressed()}

	in := InputRecord{
		PrevHash:        [32]byte{7},
		PrevIndex:       0,
		Sequence:        0xffffffff,
		AddressN:        path,
		ScriptType:      bip32.SpendWitnessMulti,
		Amount:          500_000,
		AmountKnown:     true,
		MultisigPubkeys: pubkeys,
		MultisigM:       2,
	}
	out := OutputRecord{Amount: 400_000, Address: "bc1qexternal", ScriptType: bip32.SpendAddress}

	ctx := NewSigningContext(d, root, 1, 1, 0)
	ui := collab.NewScriptedUI(true, true)
	keys := func(path []uint32, curve bip32.Curve) (*bip32.Node, error) {
		return root.DerivePath(path)
	}
	signer := NewSigner(ctx, ui, nil, keys)

	_, err = signer.ObserveInput(context.Background(), in)
	require.NoError(t, err)
	_, err = signer.ObserveOutput(context.Background(), out, in.ScriptType, 0)
	require.NoError(t, err)

	signed, _, err := signer.SignInput(context.Background(), in)
	require.NoError(t, err)

	witnessScript := MultisigRedeemScript(pubkeys, in.MultisigM)
	require.Len(t, signed.Witness, 3, "dummy item, one signature, then the witness script")
	require.Empty(t, signed.Witness[0], "OP_CHECKMULTISIG off-by-one dummy item")
	require.Equal(t, witnessScript, signed.Witness[2])
	require.Nil(t, signed.ScriptSig, "native P2WSH carries no scriptSig")

	hashPrevouts, hashSequence, hashOutputs, err := ctx.FinishAccumulators()
	require.NoError(t, err)
	preimage := BIP143Preimage(ctx.Version, hashPrevouts, hashSequence, outpointBytes(in), witnessScript, in.Amount, in.Sequence, hashOutputs, ctx.LockTime, SighashAll)
	digest, err := SighashDigest(d, preimage)
	require.NoError(t, err)

	sigDER := signed.Witness[1]
	sig, err := sigFromDER(sigDER)
	require.NoError(t, err)
	require.True(t, crypto.EcdsaVerifyDigest(ourPub, sig, digest[:]), "device signature must verify against its own derived pubkey over the multisig BIP143 digest")
}

// TestSignerP2SHWitnessMultiEmitsWrapperScriptSig is the P2SH-wrapped
// counterpart: the scriptSig must push the 0x00 0x20 <sha256(witness
// script)> wrapper rather than leaving it empty, and the witness stack
// must carry the same multisig shape as native P2WSH.
func TestSignerP2SHWitnessMultiEmitsWrapperScriptSig(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	root, err := bip32.NewMasterNode(testBip32Seed(), bip32.CurveSecp256k1)
	require.NoError(t, err)
	path := []uint32{bip32.HardenedKeyStart + 49, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0}
	ourNode, err := root.DerivePath(path)
	require.NoError(t, err)
	ourPub, err := ourNode.ECPublicKey()
	require.NoError(t, err)

	cosignerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkeys := [][]byte{ourPub.SerializeCompressed(), cosignerPriv.PubKey().SerializeCompressed()}

	in := InputRecord{
		PrevHash:        [32]byte{8},
		PrevIndex:       1,
		Sequence:        0xffffffff,
		AddressN:        path,
		ScriptType:      bip32.SpendP2SHWitnessMulti,
		Amount:          250_000,
		AmountKnown:     true,
		MultisigPubkeys: pubkeys,
		MultisigM:       2,
	}
	out := OutputRecord{Amount: 200_000, Address: "1external", ScriptType: bip32.SpendAddress}

	ctx := NewSigningContext(d, root, 1, 1, 0)
	ui := collab.NewScriptedUI(true, true)
	keys := func(path []uint32, curve bip32.Curve) (*bip32.Node, error) {
		return root.DerivePath(path)
	}
	signer := NewSigner(ctx, ui, nil, keys)

	_, err = signer.ObserveInput(context.Background(), in)
	require.NoError(t, err)
	_, err = signer.ObserveOutput(context.Background(), out, in.ScriptType, 0)
	require.NoError(t, err)

	signed, _, err := signer.SignInput(context.Background(), in)
	require.NoError(t, err)

	witnessScript := MultisigRedeemScript(pubkeys, in.MultisigM)
	sum := crypto.Sha256Sum(witnessScript)
	wantScriptSig := pushData(append([]byte{0x00, 0x20}, sum[:]...))
	require.Equal(t, wantScriptSig, signed.ScriptSig)
	require.Len(t, signed.Witness, 3)
	require.Equal(t, witnessScript, signed.Witness[2])
}

// sigFromDER recovers the raw 64-byte R||S signature a DER-encoded
// scriptSig/witness push carries, dropping the trailing sighash byte.
func sigFromDER(der []byte) ([64]byte, error) {
	var out [64]byte
	rLen := int(der[3])
	r := der[4 : 4+rLen]
	sOff := 4 + rLen + 2
	sLen := int(der[4+rLen+1])
	s := der[sOff : sOff+sLen]
	r = trimPad(r, 32)
	s = trimPad(s, 32)
	copy(out[:32], r)
	copy(out[32:], s)
	return out, nil
}

func trimPad(b []byte, size int) []byte {
	for len(b) > size {
		b = b[1:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func testBip32Seed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}
