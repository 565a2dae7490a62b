package semantic

// CollectionStats summarizes a collection for the health aggregator and
// the vector search service's get_collection_stats operation.
type CollectionStats struct {
	TotalVectors     uint64
	IndexedVectors   uint64
	CollectionStatus string
}
