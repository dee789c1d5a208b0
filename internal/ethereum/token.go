package ethereum

import (
	"fmt"
	"math/big"
)

// erc20TransferSelector is the 4-byte selector for transfer(address,uint256),
// keccak256("transfer(address,uint256)")[:4].
var erc20TransferSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}

// Token describes a known ERC-20 contract the device can render amounts
// for instead of showing raw wei. The compiled-in table below stands in
// for the signed external definitions extending it at runtime.
type Token struct {
	ChainID  uint64
	Address  [20]byte
	Symbol   string
	Decimals uint8
}

// builtinTokens is the compiled-in token table. A conformance build
// extends this at runtime from a signed definitions file verified
// against an Ed25519 key baked into the firmware; that extension path
// is out of scope here, only the lookup and rendering are.
var builtinTokens = []Token{
	{ChainID: 1, Address: hexAddr("A0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6},
	{ChainID: 1, Address: hexAddr("dAC17F958D2ee523a2206206994597C13D831ec7"), Symbol: "USDT", Decimals: 6},
	{ChainID: 1, Address: hexAddr("6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18},
}

func hexAddr(hex string) [20]byte {
	var out [20]byte
	for i := 0; i < 20; i++ {
		hi := hexNibble(hex[i*2])
		lo := hexNibble(hex[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// LookupToken finds a built-in token by chain id and contract address.
func LookupToken(chainID uint64, contract [20]byte) (Token, bool) {
	for _, t := range builtinTokens {
		if t.ChainID == chainID && t.Address == contract {
			return t, true
		}
	}
	return Token{}, false
}

// DecodeERC20Transfer recognises an ERC-20 transfer(address,uint256) call:
// a 4-byte selector, a 12-byte zero-padded address, and a 32-byte amount.
// It reports ok=false for any other shape, including a too-short prefix.
func DecodeERC20Transfer(data []byte) (recipient [20]byte, amount *big.Int, ok bool) {
	if len(data) < 4+32+32 {
		return recipient, nil, false
	}
	if data[0] != erc20TransferSelector[0] || data[1] != erc20TransferSelector[1] ||
		data[2] != erc20TransferSelector[2] || data[3] != erc20TransferSelector[3] {
		return recipient, nil, false
	}
	addrWord := data[4 : 4+32]
	for _, b := range addrWord[:12] {
		if b != 0 {
			return recipient, nil, false
		}
	}
	copy(recipient[:], addrWord[12:])
	amount = new(big.Int).SetBytes(data[4+32 : 4+32+32])
	return recipient, amount, true
}

// RenderTransfer formats a transfer amount using the token's decimals,
// e.g. "12.5 USDC". Unknown tokens are never passed here: the caller
// shows "Unknown token value" instead.
func (t Token) RenderTransfer(_ [20]byte, amount *big.Int) string {
	return fmt.Sprintf("%s %s", formatUnits(amount, t.Decimals), t.Symbol)
}

// formatUnits renders amount (an integer count of the smallest unit) as
// a decimal string with decimals fractional digits, trimming trailing
// zeros and a trailing decimal point.
func formatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int)
	rem := new(big.Int)
	whole.QuoRem(amount, divisor, rem)

	if decimals == 0 {
		return whole.String()
	}

	fracStr := rem.String()
	for len(fracStr) < int(decimals) {
		fracStr = "0" + fracStr
	}
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}
