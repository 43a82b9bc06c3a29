// Package backend is the client side of the remote generation service:
// conversations, workspace uploads, code-generation runs and their results.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/gensession/pkg/reference"
	"github.com/odvcencio/gensession/pkg/telemetry"
)

// Client is the remote generation service as seen by a session.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/odvcencio/gensession/pkg/backend Client
type Client interface {
	CreateConversation(ctx context.Context) (string, error)
	CreateUploadURL(ctx context.Context, req CreateUploadURLRequest) (*UploadURL, error)
	UploadArchive(ctx context.Context, url *UploadURL, checksum string, data []byte) error
	StartCodeGeneration(ctx context.Context, req StartCodeGenerationRequest) (*StartCodeGenerationResponse, error)
	GetCodeGeneration(ctx context.Context, conversationID, codeGenerationID string) (*CodeGeneration, error)
	ExportResultArchive(ctx context.Context, conversationID string) (*ResultArchive, error)
	SendTelemetryEvent(ctx context.Context, env telemetry.Envelope) error
}

// CreateUploadURLRequest asks for a presigned location for a workspace archive.
type CreateUploadURLRequest struct {
	ConversationID string `json:"conversationId"`
	Checksum       string `json:"contentChecksumSha256"`
	ContentLength  int64  `json:"contentLength"`
	// UploadID reuses an existing upload slot when set.
	UploadID string `json:"uploadId,omitempty"`
}

// UploadURL is where an archive should be PUT.
type UploadURL struct {
	UploadID string            `json:"uploadId"`
	URL      string            `json:"uploadUrl"`
	Headers  map[string]string `json:"requestHeaders,omitempty"`
}

// StartCodeGenerationRequest starts one generation run against an upload.
type StartCodeGenerationRequest struct {
	ConversationID   string `json:"conversationId"`
	UploadID         string `json:"uploadId"`
	CodeGenerationID string `json:"codeGenerationId"`
	Message          string `json:"message"`
	Mode             string `json:"mode,omitempty"`
	FolderPath       string `json:"folderPath,omitempty"`
}

// StartCodeGenerationResponse acknowledges a generation run.
type StartCodeGenerationResponse struct {
	CodeGenerationID string `json:"codeGenerationId"`
}

// CodeGenerationStatus is the lifecycle of a run on the backend.
type CodeGenerationStatus string

const (
	StatusInProgress CodeGenerationStatus = "InProgress"
	StatusComplete   CodeGenerationStatus = "Complete"
	StatusFailed     CodeGenerationStatus = "Failed"
)

// CodeGeneration is the polled state of a run.
type CodeGeneration struct {
	Status              CodeGenerationStatus `json:"status"`
	FailureReason       string               `json:"failureReason,omitempty"`
	RemainingIterations *int                 `json:"codeGenerationRemainingIterationCount,omitempty"`
	TotalIterations     *int                 `json:"codeGenerationTotalIterationCount,omitempty"`
}

// NewFileContent is one generated file inside a result archive.
type NewFileContent struct {
	ZipFilePath string `json:"zipFilePath"`
	Content     string `json:"fileContent"`
}

// ResultArchive is everything a completed run produced.
type ResultArchive struct {
	NewFiles     []NewFileContent      `json:"newFileContents"`
	DeletedFiles []string              `json:"deletedFiles"`
	References   []reference.Reference `json:"references"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s (code: %s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsThrottled reports a rate-limit rejection.
func (e *APIError) IsThrottled() bool {
	return e.StatusCode == 429
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
