package dto

// Record is the wire form of a versioned object, as returned by single-record
// GET and by full-mode collection GET (one JSON object per line).
type Record struct {
	ID       string  `json:"id"`
	Modified float64 `json:"modified"`
	Payload  string  `json:"payload"`
}

// BatchEntry is a single record in a bulk POST body.
type BatchEntry struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// BatchResult is the response body of a bulk POST. Modified is one fresh
// timestamp applied to every successful entry in the batch.
type BatchResult struct {
	Modified float64           `json:"modified"`
	Success  []string          `json:"success"`
	Failed   map[string]string `json:"failed"`
}

// PutRequest is the body of a single-record PUT. PUT always replaces the
// payload in full; there is no partial update.
type PutRequest struct {
	Payload string `json:"payload"`
}
