package types

// TxKind is the closed set of transaction flavors the consensus/tokenomics
// core is allowed to observe. Every other transaction type is opaque to
// the core and is handled entirely by the execution layer. Using a closed
// sum type here, rather than dispatching on a string tag, keeps the set
// of observable transactions exhaustive and switch-checkable.
type TxKind uint8

const (
	TxRegisterValidator TxKind = iota
	TxDelegate
	TxCommit
	TxReveal
)

func (k TxKind) String() string {
	switch k {
	case TxRegisterValidator:
		return "RegisterValidator"
	case TxDelegate:
		return "Delegate"
	case TxCommit:
		return "Commit"
	case TxReveal:
		return "Reveal"
	default:
		return "Unknown"
	}
}

// BlockEvent is the per-block input the host (execution layer) hands to
// the orchestrator. It carries only the fields the core's consensus math
// needs; everything else about a block -- full transaction bodies,
// signatures, gas accounting -- is the execution layer's concern and
// never crosses this boundary.
type BlockEvent struct {
	Height           uint64
	PreviousHash     Hash
	RegisterTxs      []RegisterValidatorTx
	DelegateTxs      []DelegateTx
	CommitTxs        []CommitTx
	RevealTxs        []RevealTx
	TotalBaseFeeBurn *Amount // forwarded to chain/burn with reason TxFee
	SubnetRegFee     *Amount // forwarded to chain/burn with reason SubnetReg, zero if none this block
	RandaoReveal     *Hash   // present only on the first block of an epoch
}

// RegisterValidatorTx registers a new validator.
type RegisterValidatorTx struct {
	Address   Address
	RawStake  *Amount
	TrustInit float64 // starting trust_score, normally 1.0
}

// DelegateTx delegates stake from a holder to a validator with an optional lock.
type DelegateTx struct {
	Delegator    Address
	Validator    Address
	RawStake     *Amount
	LockEpochs   uint64 // 0 means no lock
	LockBonusBps uint64 // one of {0,1000,2500,5000,10000}
}

// CommitTx is phase 1 of commit-reveal.
type CommitTx struct {
	Validator Address
	Epoch     uint64
	CommitHash Hash
}

// RevealTx is phase 2 of commit-reveal.
type RevealTx struct {
	Validator Address
	Epoch     uint64
	Vector    map[Address]uint64 // miner -> score_bps
	Salt      [32]byte
}
