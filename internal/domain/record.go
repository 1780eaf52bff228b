package domain

// Confidence describes how strongly a transaction was attributed to a
// known exchange operation.
type Confidence string

const (
	// ConfidenceHigh means a known exchange instruction with a matched
	// operation signature was present in the transaction.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means the balance-delta heuristic produced a
	// plausible acquisition but no operation signature matched.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceLow means the fee payer is a program-derived address,
	// so wallet attribution is unreliable.
	ConfidenceLow Confidence = "low"
)

// ExchangeUnknown is used when no known exchange program appeared in the
// transaction and the acquisition was detected from balance deltas alone.
const ExchangeUnknown = "unknown"

// AcquisitionRecord is the durable output unit of the pipeline: one
// detected purchase of the target token. Records are append-only; only
// SequenceNumber is assigned at append time.
//
// JSON field names are part of the export schema and must not change
// (see internal/export).
type AcquisitionRecord struct {
	TransactionHash string     `json:"transactionHash"`
	ExchangeName    string     `json:"exchangeName"`
	TargetToken     string     `json:"targetToken"`
	CounterToken    string     `json:"counterToken"`
	AmountAcquired  string     `json:"amountAcquired"` // raw integer amount, base-10
	AmountSpent     string     `json:"amountSpent"`    // raw integer amount, base-10
	TargetDecimals  int        `json:"targetDecimals"`
	CounterDecimals int        `json:"counterDecimals"`
	BlockTimestamp  int64      `json:"blockTimestamp"`
	OperationType   string     `json:"operationType"`
	ProgramID       string     `json:"programIdentifier"`
	BlockHeight     int64      `json:"blockHeight"`
	SequenceNumber  int64      `json:"sequenceNumber"`
	AcquirerAddress string     `json:"acquirerAddress"`
	UnitPrice       string     `json:"unitPrice"`
	Confidence      Confidence `json:"confidenceLevel"`
}
