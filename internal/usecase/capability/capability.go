package capability

import (
	"fmt"

	"github.com/thomasbeckford/pasichat/internal/domain"
)

// Name identifies one of the fixed capabilities the service exposes.
// Callers pick a capability and supply its arguments; they cannot
// define new ones.
type Name string

const (
	AddFact         Name = "add_fact"
	AddDocument     Name = "add_document"
	GetInformation  Name = "get_information"
	UnderstandQuery Name = "understand_query"
)

// ParseName maps a wire-level capability name onto the fixed set.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case AddFact, AddDocument, GetInformation, UnderstandQuery:
		return Name(s), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCapability, s)
	}
}

// AddFactRequest stores a single free-text fact.
type AddFactRequest struct {
	Content string `json:"content"`
}

// AddFactResult reports how many passages the fact produced.
type AddFactResult struct {
	Stored int `json:"stored"`
}

// AddDocumentRequest ingests a whole PDF document.
type AddDocumentRequest struct {
	Data []byte `json:"data"`
}

// AddDocumentResult reports the ingestion outcome for a document.
type AddDocumentResult struct {
	Chunks int `json:"chunks"`
	Stored int `json:"stored"`
}

// GetInformationRequest runs a similarity search over the knowledge base.
// Keywords are extra formulations searched alongside the question.
type GetInformationRequest struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords,omitempty"`
}

// GetInformationResult carries the merged matches for a question.
type GetInformationResult struct {
	Matches []domain.Match `json:"matches"`
}

// UnderstandQueryRequest asks for alternate formulations of a query.
type UnderstandQueryRequest struct {
	Query string `json:"query"`
}

// UnderstandQueryResult lists the original query followed by up to
// three similar questions.
type UnderstandQueryResult struct {
	Queries []string `json:"queries"`
}
