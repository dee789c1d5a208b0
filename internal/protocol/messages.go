package protocol

// MessageID is the wire-level 16-bit message identifier.
// The catalogue here is the closed set this core's handlers recognise;
// it is intentionally a hand-written constant table rather than a
// generated protobuf registry, since the message set is small and fixed
// for this core.
type MessageID uint16

const (
	MsgInitialize MessageID = iota + 1
	MsgFeatures
	MsgCancel
	MsgButtonRequest
	MsgButtonAck
	MsgPinMatrixRequest
	MsgPinMatrixAck
	MsgPassphraseRequest
	MsgPassphraseAck
	MsgSuccess
	MsgFailure
	MsgGetAddress
	MsgAddress
	MsgSignTx
	MsgTxRequest
	MsgTxAck
	MsgSignMessage
	MsgMessageSignature
	MsgVerifyMessage
	MsgSignEthereumTx
	MsgEthereumTxRequest
	MsgEthereumTxAck
	MsgSignEthereumMessage
	MsgEthereumMessageSignature
	MsgUnlockPath
)

// interruptSet is the enumerated set of messages the tiny parser
// recognises while a handler is suspended.
var interruptSet = map[MessageID]bool{
	MsgCancel:        true,
	MsgInitialize:    true,
	MsgButtonAck:     true,
	MsgPinMatrixAck:  true,
	MsgPassphraseAck: true,
	MsgEthereumTxAck: true,
	MsgTxAck:         true,
}

// IsInterrupt reports whether id is part of the tiny parser's
// enumerated set.
func IsInterrupt(id MessageID) bool { return interruptSet[id] }

// Envelope is a decoded wire message: an id plus its raw payload bytes.
// Handlers type-assert/decode Payload into the concrete struct their
// MessageID implies.
type Envelope struct {
	ID      MessageID
	Payload []byte
}

// Features answers Initialize; only the fields this core's spec
// actually tracks are modeled.
type Features struct {
	Initialized          bool
	PinProtection        bool
	PassphraseProtection bool
	SafetyChecks         string
	AutoLockDelayMs      uint32
}

// ButtonRequestPayload is sent before every physical-confirmation wait.
type ButtonRequestPayload struct {
	Code string
}

// PinMatrixRequestPayload accompanies a freshly generated 3x3 matrix
// permutation; the permutation itself never leaves the
// device and is not part of the wire payload.
type PinMatrixRequestPayload struct{}

// PinMatrixAckPayload carries the digits the user entered, expressed as
// matrix-relative indices (1-9) before PinMatrix.TranslateAll
// translates them back through the device's permutation.
type PinMatrixAckPayload struct {
	MatrixDigits string
}

// GetAddressPayload requests an address for a coin/path/script type.
type GetAddressPayload struct {
	Coin       string
	Path       []uint32
	ScriptType int
	ShowOnUI   bool
}

// AddressPayload answers GetAddress with the encoded address string.
type AddressPayload struct {
	Address string
}

// SignTxPayload opens a UTXO signing flow.
type SignTxPayload struct {
	Coin         string
	InputsCount  uint32
	OutputsCount uint32
	LockTime     uint32
	Expiry       uint32
	Version      uint32
	Overwintered bool
	BranchID     uint32
}

// TxRequestDetails describes which field the device wants next, mirroring
// the REQ_* stage enumeration.
type TxRequestDetails struct {
	RequestIndex int
	TxHash       []byte // non-nil when requesting prev-tx data
}

// TxRequestPayload is emitted by the UTXO engine at every stage boundary.
type TxRequestPayload struct {
	RequestType  string // "TXINPUT", "TXOUTPUT", "TXMETA", "TXEXTRADATA", "TXFINISHED"
	Details      TxRequestDetails
	SerializedTx []byte
}

// TxAckInputPayload is one phase's worth of input data the host streams
// back in answer to a TXINPUT request.
type TxAckInputPayload struct {
	PrevHash        [32]byte
	PrevIndex       uint32
	Sequence        uint32
	AddressN        []uint32
	ScriptType      int
	Amount          uint64
	AmountKnown     bool
	External        bool
	ScriptPubKey    []byte
	OwnershipProof  []byte
	MultisigPubkeys [][]byte
	MultisigM       int
}

// TxAckOutputPayload is one output's wire data, answering a TXOUTPUT
// request.
type TxAckOutputPayload struct {
	Amount     uint64
	Address    string
	AddressN   []uint32
	ScriptType int
}

// TxAckPayload answers one TxRequest. Exactly one of Input or Output is
// populated, matching whichever RequestType the preceding TxRequest
// carried.
type TxAckPayload struct {
	Input  *TxAckInputPayload
	Output *TxAckOutputPayload
}

// EthereumAccessListItem mirrors one EIP-2930/EIP-1559 access-list entry
// at the wire level.
type EthereumAccessListItem struct {
	Address     [20]byte
	StorageKeys [][32]byte
}

// SignEthereumTxPayload opens an Ethereum signing flow.
type SignEthereumTxPayload struct {
	AddressN    []uint32
	Nonce       []byte
	GasPrice    []byte
	GasLimit    []byte
	MaxGasFee   []byte
	MaxPriority []byte
	AccessList  []EthereumAccessListItem
	To          string
	Value       []byte
	DataInitial []byte
	DataLength  uint32
	ChainID     uint64
	EIP1559     bool
}

// EthereumTxRequestPayload asks the host for the next chunk of data.
type EthereumTxRequestPayload struct {
	DataLength uint32
	Signature  *EthereumSignature
}

// EthereumTxAckPayload answers an EthereumTxRequest with the next chunk
// of the transaction's data field.
type EthereumTxAckPayload struct {
	DataChunk []byte
}

// EthereumSignature is the final ECDSA signature triple.
type EthereumSignature struct {
	V uint64
	R []byte
	S []byte
}
