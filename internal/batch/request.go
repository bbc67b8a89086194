package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/prompt"
)

const (
	// ChatCompletionsEndpoint is the remote endpoint every request targets.
	ChatCompletionsEndpoint = "/v1/chat/completions"

	customIDFormat     = "%s_task_%d"
	customIDInfix      = "_task_"
	batchFileFormat    = "%s_batch_%d_%s.jsonl"
	batchFileTimestamp = "2006-01-02-15-04"
	userRole           = "user"
	textResponseFormat = "text"

	malformedCustomIDErrorFormat = "malformed custom_id %q"
	decodeRequestErrorFormat     = "decode batch request line %d: %w"
)

// Message is a single chat message in a batch request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat selects the completion output mode.
type ResponseFormat struct {
	Type string `json:"type"`
}

// RequestBody carries the chat-completion parameters for one dataset row.
type RequestBody struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Logprobs       bool           `json:"logprobs"`
	TopLogprobs    int            `json:"top_logprobs"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Messages       []Message      `json:"messages"`
}

// Request is one line of a batch input file.
type Request struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// Build renders one request per dataset row. Custom ids are 1-based so they
// line up with spreadsheet row numbering.
func Build(experimentName string, rows []string, template prompt.Template, experiment config.Experiment) []Request {
	requests := make([]Request, 0, len(rows))
	for index, row := range rows {
		requests = append(requests, Request{
			CustomID: fmt.Sprintf(customIDFormat, experimentName, index+1),
			Method:   "POST",
			URL:      ChatCompletionsEndpoint,
			Body: RequestBody{
				Model:          experiment.ModelName,
				Temperature:    experiment.Temperature,
				Logprobs:       true,
				TopLogprobs:    experiment.TopLogprobs,
				ResponseFormat: ResponseFormat{Type: textResponseFormat},
				Messages:       []Message{{Role: userRole, Content: template.Render(row)}},
			},
		})
	}
	return requests
}

// Chunk splits requests into groups of at most size entries.
func Chunk(requests []Request, size int) [][]Request {
	if len(requests) == 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	var chunks [][]Request
	for start := 0; start < len(requests); start += size {
		end := start + size
		if end > len(requests) {
			end = len(requests)
		}
		chunk := append([]Request(nil), requests[start:end]...)
		chunks = append(chunks, chunk)
	}
	return chunks
}

// FileName names a chunk's batch file.
func FileName(experimentName string, chunkIndex int, timestamp time.Time) string {
	return fmt.Sprintf(batchFileFormat, experimentName, chunkIndex, timestamp.Format(batchFileTimestamp))
}

// EncodeJSONL serializes requests one JSON object per line.
func EncodeJSONL(requests []Request) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			return nil, err
		}
	}
	return buffer.Bytes(), nil
}

// DecodeJSONL parses a batch input file back into requests.
func DecodeJSONL(content []byte) ([]Request, error) {
	var requests []Request
	for lineNumber, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var request Request
		if err := json.Unmarshal([]byte(trimmed), &request); err != nil {
			return nil, fmt.Errorf(decodeRequestErrorFormat, lineNumber+1, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// CustomIDIndex recovers the 1-based dataset row number from a custom id.
func CustomIDIndex(customID string) (int, error) {
	infixIndex := strings.LastIndex(customID, customIDInfix)
	if infixIndex < 0 {
		return 0, fmt.Errorf(malformedCustomIDErrorFormat, customID)
	}
	rowNumber, parseErr := strconv.Atoi(customID[infixIndex+len(customIDInfix):])
	if parseErr != nil || rowNumber < 1 {
		return 0, fmt.Errorf(malformedCustomIDErrorFormat, customID)
	}
	return rowNumber, nil
}
