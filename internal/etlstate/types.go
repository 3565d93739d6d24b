package etlstate

// StateRecord is the most recently completed ETL cycle, as read back from
// the state table. A nil field means the store had no value for it (either
// no completed cycle exists at all, or the column was never written).
type StateRecord struct {
	TimestampStart     *int64
	TimestampEnd       *int64
	TimestampProgress  *int64
	BatchWindowSeconds *uint32
	BatchRows          *uint64
	BatchSkippedCount  *uint64
}

// StateFields carries the subset of columns a single SaveState call writes.
// A nil field is omitted from the INSERT's column list entirely, matching
// the store's "only provided fields are saved" contract.
type StateFields struct {
	TimestampStart     *int64
	TimestampEnd       *int64
	TimestampProgress  *int64
	BatchWindowSeconds *uint32
	BatchRows          *uint64
	BatchSkippedCount  *uint64
}
