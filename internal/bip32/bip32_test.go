package bip32

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/signcore/internal/crypto"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func TestNewMasterNodeSecp256k1RejectsShortSeed(t *testing.T) {
	_, err := NewMasterNode(make([]byte, 8), CurveSecp256k1)
	require.Error(t, err)
}

func TestDerivePathDeterministic(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)

	path := []uint32{HardenedKeyStart + 44, HardenedKeyStart, HardenedKeyStart, 0, 0}
	a, err := root.DerivePath(path)
	require.NoError(t, err)
	b, err := root.DerivePath(path)
	require.NoError(t, err)

	require.Equal(t, a.PublicKey(), b.PublicKey())
	require.Equal(t, a.PrivateKey(), b.PrivateKey())
}

func TestDeriveDivergesOnDifferentIndex(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)

	a, err := root.Derive(HardenedKeyStart)
	require.NoError(t, err)
	b, err := root.Derive(HardenedKeyStart + 1)
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestEd25519DerivationRequiresHardenedIndex(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveEd25519)
	require.NoError(t, err)

	_, err = root.Derive(0)
	require.ErrorIs(t, err, ErrEd25519HardenedOnly)

	child, err := root.Derive(HardenedKeyStart)
	require.NoError(t, err)
	require.Equal(t, CurveEd25519, child.Curve())
	require.Len(t, child.PublicKey(), 32)
}

func TestECPrivateKeyRejectsEd25519Node(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveEd25519)
	require.NoError(t, err)
	_, err = root.ECPrivateKey()
	require.ErrorIs(t, err, ErrCurveMismatch)
}

func TestExtendedPublicKeyStringOnlySecp256k1(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveEd25519)
	require.NoError(t, err)
	_, err = root.ExtendedPublicKeyString()
	require.ErrorIs(t, err, ErrCurveMismatch)

	ecRoot, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)
	xpub, err := ecRoot.ExtendedPublicKeyString()
	require.NoError(t, err)
	require.NotEmpty(t, xpub)
}

func TestScrubClearsPrivateKeyAndChainCode(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)
	root.Scrub()
	for _, b := range root.PrivateKey() {
		require.Equal(t, byte(0), b)
	}
	require.Equal(t, [32]byte{}, root.ChainCode())
}

func TestParsePathHardenedAndNormal(t *testing.T) {
	path, err := ParsePath("m/44'/0'/0'/0/0")
	require.NoError(t, err)
	require.Equal(t, []uint32{
		HardenedKeyStart + 44,
		HardenedKeyStart + 0,
		HardenedKeyStart + 0,
		0,
		0,
	}, path)
}

func TestParsePathRejectsOutOfRangeComponent(t *testing.T) {
	_, err := ParsePath("m/4294967295")
	require.Error(t, err)
}

func TestParsePathEmptyIsRoot(t *testing.T) {
	path, err := ParsePath("m")
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestCommonPrefixLen(t *testing.T) {
	a := []uint32{1, 2, 3, 4}
	b := []uint32{1, 2, 9, 4}
	require.Equal(t, 2, CommonPrefixLen(a, b))
}

func TestIsChangePath(t *testing.T) {
	prefix := []uint32{HardenedKeyStart + 84, HardenedKeyStart, HardenedKeyStart}
	require.True(t, IsChangePath(prefix, append(append([]uint32{}, prefix...), 1, 0), 1, 1000000))
	require.False(t, IsChangePath(prefix, append(append([]uint32{}, prefix...), 2, 0), 1, 1000000))
	require.False(t, IsChangePath(prefix, append(append([]uint32{}, prefix...), 0), 1, 1000000))
}

func TestCacheGetPutInvalidate(t *testing.T) {
	c := NewCache(2)
	path := []uint32{HardenedKeyStart, 0}
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)

	_, ok := c.Get(CurveSecp256k1, path)
	require.False(t, ok)

	c.Put(CurveSecp256k1, path, root)
	got, ok := c.Get(CurveSecp256k1, path)
	require.True(t, ok)
	require.Equal(t, root.PublicKey(), got.PublicKey())

	c.Invalidate()
	_, ok = c.Get(CurveSecp256k1, path)
	require.False(t, ok)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(1)
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)

	pathA := []uint32{0}
	pathB := []uint32{1}
	c.Put(CurveSecp256k1, pathA, root)
	c.Put(CurveSecp256k1, pathB, root)

	_, ok := c.Get(CurveSecp256k1, pathA)
	require.False(t, ok, "capacity-1 cache must evict the older entry")
	_, ok = c.Get(CurveSecp256k1, pathB)
	require.True(t, ok)
}

func TestEncodeAddressSpendAddress(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)
	pub := root.PublicKey()

	addr, err := EncodeAddress(SpendAddress, AddressParams{AddressVersion: []byte{0x00}}, pub, nil)
	require.NoError(t, err)
	require.NotEmpty(t, addr)

	version, payload, err := crypto.Base58CheckDecode(addr, 1, crypto.Sha256d)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, version)
	require.Equal(t, crypto.Hash160(pub), payload)
}

func TestEncodeAddressWitnessSingleAndTaproot(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)
	pub := root.PublicKey()

	addr, err := EncodeAddress(SpendWitnessSingle, AddressParams{Bech32HRP: "bc"}, pub, nil)
	require.NoError(t, err)
	decoded, err := ParseSegwitAddress("bc", addr)
	require.NoError(t, err)
	require.Equal(t, SpendWitnessSingle, decoded.Type)

	taprootAddr, err := EncodeAddress(SpendTaproot, AddressParams{Bech32HRP: "bc"}, pub, nil)
	require.NoError(t, err)
	taprootDecoded, err := ParseSegwitAddress("bc", taprootAddr)
	require.NoError(t, err)
	require.Equal(t, SpendTaproot, taprootDecoded.Type)
	require.Len(t, taprootDecoded.XOnlyKey, 32)
}

func TestEncodeAddressCashaddr(t *testing.T) {
	root, err := NewMasterNode(testSeed(), CurveSecp256k1)
	require.NoError(t, err)
	pub := root.PublicKey()

	addr, err := EncodeAddress(SpendCashaddr, AddressParams{CashaddrPrefix: "bitcoincash"}, pub, nil)
	require.NoError(t, err)

	addrType, hash, err := crypto.CashaddrDecode("bitcoincash", addr)
	require.NoError(t, err)
	require.Equal(t, byte(0), addrType)
	require.Equal(t, crypto.Hash160(pub), hash)
}

func TestEncodeAddressUnsupportedScriptType(t *testing.T) {
	_, err := EncodeAddress(ScriptType(99), AddressParams{}, nil, nil)
	require.ErrorIs(t, err, ErrUnsupportedScriptType)
}
