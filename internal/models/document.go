package models

import "time"

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusAnalyzing  DocumentStatus = "ANALYZING"
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

type ApprovalStatus string

const (
	ApprovalStatusNotRequired ApprovalStatus = "NOT_REQUIRED"
	ApprovalStatusPending     ApprovalStatus = "PENDING"
	ApprovalStatusApproved    ApprovalStatus = "APPROVED"
	ApprovalStatusRejected    ApprovalStatus = "REJECTED"
)

// SystemApprover is recorded as the approver when auto-approval admits a document.
const SystemApprover = "SYSTEM_AUTO"

type Document struct {
	ID                 string
	UserID             string
	SubscriptionID     *string
	OriginalDocumentID *string
	Title              string
	OriginalFilename   string
	FileType           string
	FileSize           int64
	UploadPath         string
	PDFPath            *string
	PDFFilename        *string
	ContentHash        string
	PageCount          *int
	WordCount          *int
	CharacterCount     *int
	PackageCode        *string
	Status             DocumentStatus
	RequiresApproval   bool
	ApprovalStatus     ApprovalStatus
	RejectionReason    *string
	ApprovedBy         *string
	ApprovedAt         *time.Time
	IsDuplicate        bool
	JobID              *string
	JobStartedAt       *time.Time
	UploadedAt         time.Time
	UpdatedAt          time.Time
}

// FlagType is one category of similarity flag reported by the processor.
type FlagType struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CopyFlagTypes returns a non-nil copy of src. flag_types is stored as a
// JSON array and must never encode as NULL.
func CopyFlagTypes(src []FlagType) []FlagType {
	dst := make([]FlagType, len(src))
	copy(dst, src)
	return dst
}

type AnalysisMetadata struct {
	Processor   string `json:"processor,omitempty"`
	Version     string `json:"version,omitempty"`
	SourcePages int    `json:"sourcePages,omitempty"`
}

type PlagiarismReport struct {
	OverallSimilarity float64  `json:"overallSimilarity"`
	Sources           []string `json:"sources,omitempty"`
}

type DocumentAnalysis struct {
	ID               string
	DocumentID       string
	FlagCount        int
	FlagTypes        []FlagType
	OCRText          *string
	SimilarityScore  *float64
	Metadata         AnalysisMetadata
	PlagiarismReport PlagiarismReport
	AnalyzedAt       time.Time
}

type BypassStatus string

const (
	BypassStatusProcessing BypassStatus = "PROCESSING"
	BypassStatusCompleted  BypassStatus = "COMPLETED"
	BypassStatusFailed     BypassStatus = "FAILED"
)

type BypassConfiguration struct {
	Strategy    string `json:"strategy"`
	Aggressive  bool   `json:"aggressive,omitempty"`
	KeepFormats bool   `json:"keepFormats,omitempty"`
}

// ProcessorResponse is the subset of the processor's job result persisted for audit.
type ProcessorResponse struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type BypassHistory struct {
	ID                string
	DocumentID        string
	UserID            string
	Strategy          string
	Status            BypassStatus
	Progress          int
	OutputPath        *string
	OutputFilename    *string
	OutputFileSize    *int64
	FlagsRemoved      int
	ProcessingTime    float64
	SuccessRate       float64
	ProcessorResponse ProcessorResponse
	Configuration     BypassConfiguration
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

type DuplicateStats struct {
	TotalDocuments     int     `json:"totalDocuments"`
	DuplicateDocuments int     `json:"duplicateDocuments"`
	OriginalDocuments  int     `json:"originalDocuments"`
	DuplicateRate      float64 `json:"duplicateRate"`
}
