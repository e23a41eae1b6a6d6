// Package dynamo provides shared DynamoDB attribute names, expressions and record layouts
// for the journal and snapshot tables.
package dynamo

const (
	// Primary key attributes.
	AttrPKey = "pkey"
	AttrSKey = "skey"

	// Record attributes. aid and seq_nr form the key of the aid index on both tables.
	AttrAID           = "aid"
	AttrSeqNr         = "seq_nr"
	AttrPayload       = "payload"
	AttrOccurredAt    = "occurred_at"
	AttrVersion       = "version"
	AttrTTL           = "ttl"
	AttrLastUpdatedAt = "last_updated_at"

	// LatestSeqNr is the seq_nr of the snapshot slot that always holds the latest state.
	LatestSeqNr = 0

	// ConditionNotExists guards puts against overwriting an existing record.
	ConditionNotExists = "attribute_not_exists(" + AttrPKey + ") AND attribute_not_exists(" + AttrSKey + ")"

	// BatchWriteLimit is the maximum number of requests in one BatchWriteItem call.
	BatchWriteLimit = 25

	// CancellationConditionalCheckFailed is the cancellation reason code DynamoDB reports
	// for a transaction item whose condition failed.
	CancellationConditionalCheckFailed = "ConditionalCheckFailed"

	// CancellationTransactionConflict is reported when another transaction was
	// writing the same item at the same time.
	CancellationTransactionConflict = "TransactionConflict"
)
