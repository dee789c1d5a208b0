package utxo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/coin"
)

func TestHasherCheckDetectsReorder(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	mk := func(order []int) []byte {
		inputs := []InputRecord{
			{PrevHash: [32]byte{1}, PrevIndex: 0, ScriptType: bip32.SpendAddress, AddressN: []uint32{0, 0, 0, 0, 0}, Amount: 100, AmountKnown: true},
			{PrevHash: [32]byte{2}, PrevIndex: 1, ScriptType: bip32.SpendAddress, AddressN: []uint32{0, 0, 0, 0, 1}, Amount: 200, AmountKnown: true},
		}
		ctx := NewSigningContext(d, nil, len(inputs), 1, 0)
		for _, i := range order {
			ctx.Phase1ObserveInput(inputs[i])
		}
		require.NoError(t, ctx.Phase1FinishInputs())
		return ctx.hasherCheckSum
	}

	sumA := mk([]int{0, 1})
	sumB := mk([]int{0, 1})
	require.Equal(t, sumA, sumB, "identical orderings must produce byte-equal hasher_check digests")

	sumC := mk([]int{1, 0})
	require.NotEqual(t, sumA, sumC, "reordered inputs must diverge, catching host reorder between phases")
}

func TestFeeThresholdAndNegativeFee(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	fee, over, err := CheckFee(d, 100_000_000, 90_000_000, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000), fee)
	require.False(t, over)

	_, _, err = CheckFee(d, 50, 100, 1000)
	require.ErrorIs(t, err, ErrNegativeFee)
}

func TestChangeDetectionRespectsCommonPrefixAndScriptType(t *testing.T) {
	d, err := coin.ByName("Bitcoin")
	require.NoError(t, err)

	ctx := NewSigningContext(d, nil, 2, 2, 0)
	ctx.ObserveInputPath([]uint32{bip32.HardenedKeyStart + 84, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0})
	ctx.ObserveInputPath([]uint32{bip32.HardenedKeyStart + 84, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 1})

	already := false
	change := OutputRecord{Amount: 50, AddressN: []uint32{bip32.HardenedKeyStart + 84, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 1, 0}, ScriptType: bip32.SpendWitnessSingle}
	require.True(t, ctx.IsChangeOutput(change, bip32.SpendWitnessSingle, 1000, &already))
	require.True(t, already)

	// A second output matching the same rule is NOT silently accepted.
	require.False(t, ctx.IsChangeOutput(change, bip32.SpendWitnessSingle, 1000, &already))

	// Diverging account index degrades to "external".
	ctx2 := NewSigningContext(d, nil, 2, 2, 0)
	ctx2.ObserveInputPath([]uint32{bip32.HardenedKeyStart + 49, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0})
	ctx2.ObserveInputPath([]uint32{bip32.HardenedKeyStart + 49, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 1})
	already2 := false
	diverged := OutputRecord{Amount: 50, AddressN: []uint32{bip32.HardenedKeyStart + 49, bip32.HardenedKeyStart, bip32.HardenedKeyStart + 1, 0, 0}, ScriptType: bip32.SpendP2SHWitnessSingle}
	require.False(t, ctx2.IsChangeOutput(diverged, bip32.SpendP2SHWitnessSingle, 1000, &already2))
}

func TestLegacySighashDeterministic(t *testing.T) {
	inputs := []TxInputWire{{PrevHash: [32]byte{9}, PrevIndex: 0, Sequence: 0xffffffff}}
	outputs := []TxOutputWire{{Amount: 100, ScriptPubKey: []byte{0x76, 0xa9, 0x14}}}
	scriptCode := ScriptCodeP2PKH(make([]byte, 20))

	h1 := LegacySighash(1, inputs, 0, scriptCode, outputs, 0, SighashAll)
	h2 := LegacySighash(1, inputs, 0, scriptCode, outputs, 0, SighashAll)
	require.Equal(t, h1, h2)

	h3 := LegacySighash(1, inputs, 0, scriptCode, outputs, 1, SighashAll)
	require.NotEqual(t, h1, h3, "changing lock_time must change the digest")
}
