package utxo

import (
	"errors"

	"github.com/arcsign/signcore/internal/coin"
)

// ErrNegativeFee is returned when inputs fund less than outputs spend
// on a coin that does not permit negative fees.
var ErrNegativeFee = errors.New("utxo: negative fee not permitted for this coin")

// CheckFee implements the fee rule:
//
//	fee = Σ inputs − Σ outputs
//	fee > (tx_weight × maxfee_per_kb) / 4000 triggers a confirmation
//
// txWeight is the transaction weight in weight units (vbytes * 4 for a
// non-segwit tx, or the full BIP141 weight for a segwit one).
// overThreshold is true when the fee warrants an explicit
// fee-over-threshold dialog rather than silent acceptance.
func CheckFee(d coin.Descriptor, toSpend, spending uint64, txWeight uint64) (fee int64, overThreshold bool, err error) {
	fee = int64(toSpend) - int64(spending)
	if fee < 0 {
		if !d.HasCapability(coin.CapNegativeFee) {
			return fee, false, ErrNegativeFee
		}
		return fee, false, nil
	}
	threshold := (txWeight * d.MaxFeeKB) / 4000
	overThreshold = uint64(fee) > threshold
	return fee, overThreshold, nil
}
