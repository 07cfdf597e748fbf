package domain

// RevisionKind identifies which operation produced an oracle revision.
type RevisionKind string

const (
	RevisionInitialize RevisionKind = "initialize"
	RevisionUpdate     RevisionKind = "update"
	RevisionObserved   RevisionKind = "observed" // seen on a cluster subscription
)

// OracleRevision is one committed attribute set of an oracle.
// Corresponds to oracle_revisions table in ClickHouse.
type OracleRevision struct {
	Oracle     Pubkey       // oracle address
	Provider   Pubkey       // provider address at the time of the revision
	Kind       RevisionKind // initialize | update | observed
	Attributes []Attribute  // full attribute set after the operation
	Signer     Pubkey       // authorizing signer (zero for observed revisions)
	Slot       int64        // cluster slot for observed revisions, 0 otherwise
	RecordedAt int64        // Unix timestamp in milliseconds
}
