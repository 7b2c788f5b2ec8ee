package core

// Document categories known to the scheduler. Any other category string is
// treated as text.
const (
	CategoryCompetitor    = "competitor"
	CategoryPaper         = "paper"
	CategorySocial        = "social"
	CategoryNews          = "news"
	CategoryDossier       = "dossier"
	CategoryDocumentation = "documentation"
	CategoryImage         = "image"
	CategoryVideo         = "video"
)

// DocumentStatus is the processing state of a document on the wire.
type DocumentStatus string

const (
	DocPending    DocumentStatus = "pending"
	DocProcessing DocumentStatus = "processing"
	DocStored     DocumentStatus = "stored"
)

// Document is corpus metadata. Content is loaded separately and never held
// by the scheduler beyond the current batch.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	SizeBytes int64  `json:"size_bytes"`
}

// IsMedia reports whether the document routes to the vision model and is
// batched on its own.
func (d Document) IsMedia() bool {
	return d.Category == CategoryImage || d.Category == CategoryVideo
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(chars int64) int {
	if chars <= 0 {
		return 0
	}
	return int(chars / 4)
}
