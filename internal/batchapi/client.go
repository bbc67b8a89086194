package batchapi

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const (
	batchCompletionWindow = "24h"

	// Remote statuses the tracker reacts to. Anything else counts as
	// still in flight.
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"

	uploadErrorFormat        = "upload batch file %s: %w"
	createBatchErrorFormat   = "create batch for file %s: %w"
	retrieveBatchErrorFormat = "retrieve batch %s: %w"
	downloadErrorFormat      = "download batch output %s: %w"
	missingOutputErrorFormat = "batch %s is completed but has no output file"
)

// State is a snapshot of one remote batch.
type State struct {
	ID           string
	Status       string
	OutputFileID string
}

// Completed reports whether the batch finished successfully.
func (state State) Completed() bool { return state.Status == StatusCompleted }

// Terminated reports whether the batch reached a terminal failure status.
func (state State) Terminated() bool {
	switch state.Status {
	case StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Service is the minimal batch API surface the executor needs. It mirrors the
// go-openai client methods so alternative or fake backends can be adapted.
type Service interface {
	SubmitBatchFile(ctx context.Context, fileName string, content []byte) (string, error)
	BatchState(ctx context.Context, batchID string) (State, error)
	DownloadOutput(ctx context.Context, outputFileID string) ([]byte, error)
}

// OpenAIService adapts *openai.Client to the Service interface.
type OpenAIService struct {
	Inner *openai.Client
}

// NewOpenAIService builds a Service backed by the hosted OpenAI batch API.
func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{Inner: openai.NewClient(apiKey)}
}

// SubmitBatchFile uploads a prepared JSONL file and opens a batch over it,
// returning the remote batch identifier.
func (service *OpenAIService) SubmitBatchFile(ctx context.Context, fileName string, content []byte) (string, error) {
	uploadedFile, uploadErr := service.Inner.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    fileName,
		Bytes:   content,
		Purpose: openai.PurposeBatch,
	})
	if uploadErr != nil {
		return "", fmt.Errorf(uploadErrorFormat, fileName, uploadErr)
	}

	createdBatch, createErr := service.Inner.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      uploadedFile.ID,
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: batchCompletionWindow,
	})
	if createErr != nil {
		return "", fmt.Errorf(createBatchErrorFormat, fileName, createErr)
	}
	return createdBatch.ID, nil
}

// BatchState retrieves the current remote status of a batch.
func (service *OpenAIService) BatchState(ctx context.Context, batchID string) (State, error) {
	remoteBatch, retrieveErr := service.Inner.RetrieveBatch(ctx, batchID)
	if retrieveErr != nil {
		return State{}, fmt.Errorf(retrieveBatchErrorFormat, batchID, retrieveErr)
	}
	state := State{ID: remoteBatch.ID, Status: string(remoteBatch.Status)}
	if remoteBatch.OutputFileID != nil {
		state.OutputFileID = *remoteBatch.OutputFileID
	}
	if state.Completed() && state.OutputFileID == "" {
		return State{}, fmt.Errorf(missingOutputErrorFormat, batchID)
	}
	return state, nil
}

// DownloadOutput fetches the raw JSONL results of a completed batch.
func (service *OpenAIService) DownloadOutput(ctx context.Context, outputFileID string) ([]byte, error) {
	fileContent, downloadErr := service.Inner.GetFileContent(ctx, outputFileID)
	if downloadErr != nil {
		return nil, fmt.Errorf(downloadErrorFormat, outputFileID, downloadErr)
	}
	defer func() { _ = fileContent.Close() }()

	content, readErr := io.ReadAll(fileContent)
	if readErr != nil {
		return nil, fmt.Errorf(downloadErrorFormat, outputFileID, readErr)
	}
	return content, nil
}
