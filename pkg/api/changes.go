package api

// Change is one entry of the vault change feed. Content is intentionally
// absent: clients fetch it with a separate read so the feed stays cheap to
// page through.
type Change struct {
	Path       string `json:"path"`
	Revision   int64  `json:"revision"`
	ModifiedAt int64  `json:"modified_at"` // unix nanoseconds
	Deleted    bool   `json:"deleted,omitempty"`
}

// ChangesResponse is the reply to GET /api/v1/vaults/{vault}/changes?since=N.
// Changes are ordered by revision ascending. CurrentRevision is the vault's
// global revision counter at the time of the call; when HasMore is false the
// client may advance its pull cursor to it directly.
type ChangesResponse struct {
	Changes         []Change `json:"changes"`
	CurrentRevision int64    `json:"current_revision"`
	HasMore         bool     `json:"has_more"`
}
