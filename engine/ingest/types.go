package ingest

// DocumentInput is the raw input to the ingestion pipeline: file bytes and a
// filename, as received at the HTTP boundary (A4).
type DocumentInput struct {
	Content  string
	Filename string
}

// parsedDocument is the document after id assignment, before chunking.
type parsedDocument struct {
	DocumentID string
	Filename   string
	Content    string
}
