package batch_test

import (
	"strings"
	"testing"
	"time"

	"github.com/lexibench/batchlab/internal/batch"
	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/prompt"
)

const (
	experimentName = "familiarity"
	modelName      = "gpt-4o-mini"
	templateText   = "Rate the familiarity of [expression here] from 1 to 7."
)

func sampleExperiment() config.Experiment {
	return config.Experiment{
		DatasetName: "expressions.csv",
		Prompt:      "familiarity.txt",
		ModelName:   modelName,
		TopLogprobs: 10,
	}
}

func sampleTemplate(t *testing.T) prompt.Template {
	t.Helper()
	template, parseErr := prompt.Parse("familiarity.txt", templateText, "")
	if parseErr != nil {
		t.Fatalf("parse template: %v", parseErr)
	}
	return template
}

func TestBuildRequests(t *testing.T) {
	rows := []string{"dar la lata", "tomar el pelo"}

	requests := batch.Build(experimentName, rows, sampleTemplate(t), sampleExperiment())
	if len(requests) != len(rows) {
		t.Fatalf("expected %d requests, got %d", len(rows), len(requests))
	}

	first := requests[0]
	if first.CustomID != "familiarity_task_1" {
		t.Fatalf("unexpected custom id %q", first.CustomID)
	}
	if first.Method != "POST" || first.URL != batch.ChatCompletionsEndpoint {
		t.Fatalf("unexpected request envelope %+v", first)
	}
	if first.Body.Model != modelName || !first.Body.Logprobs || first.Body.TopLogprobs != 10 {
		t.Fatalf("unexpected request body %+v", first.Body)
	}
	if first.Body.ResponseFormat.Type != "text" {
		t.Fatalf("unexpected response format %+v", first.Body.ResponseFormat)
	}
	if len(first.Body.Messages) != 1 || !strings.Contains(first.Body.Messages[0].Content, "dar la lata") {
		t.Fatalf("expected rendered expression in message, got %+v", first.Body.Messages)
	}
	if strings.Contains(first.Body.Messages[0].Content, "[expression here]") {
		t.Fatalf("placeholder left in message %q", first.Body.Messages[0].Content)
	}
}

func TestChunkRespectsSizeLimit(t *testing.T) {
	testCases := []struct {
		name          string
		requestCount  int
		chunkSize     int
		expectedSizes []int
	}{
		{name: "empty input", requestCount: 0, chunkSize: 10},
		{name: "single partial chunk", requestCount: 3, chunkSize: 10, expectedSizes: []int{3}},
		{name: "exact multiple", requestCount: 4, chunkSize: 2, expectedSizes: []int{2, 2}},
		{name: "remainder chunk", requestCount: 5, chunkSize: 2, expectedSizes: []int{2, 2, 1}},
		{name: "non-positive size treated as one", requestCount: 2, chunkSize: 0, expectedSizes: []int{1, 1}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			rows := make([]string, testCase.requestCount)
			for index := range rows {
				rows[index] = "row"
			}
			requests := batch.Build(experimentName, rows, sampleTemplate(t), sampleExperiment())

			chunks := batch.Chunk(requests, testCase.chunkSize)
			if len(chunks) != len(testCase.expectedSizes) {
				t.Fatalf("expected %d chunks, got %d", len(testCase.expectedSizes), len(chunks))
			}
			for index, expectedSize := range testCase.expectedSizes {
				if len(chunks[index]) != expectedSize {
					t.Fatalf("chunk %d: expected %d requests, got %d", index, expectedSize, len(chunks[index]))
				}
			}
		})
	}
}

func TestEncodeDecodeJSONL(t *testing.T) {
	requests := batch.Build(experimentName, []string{"dar la lata"}, sampleTemplate(t), sampleExperiment())

	encoded, encodeErr := batch.EncodeJSONL(requests)
	if encodeErr != nil {
		t.Fatalf("encode: %v", encodeErr)
	}
	if strings.Count(strings.TrimSpace(string(encoded)), "\n") != 0 {
		t.Fatalf("expected one line, got %q", string(encoded))
	}

	decoded, decodeErr := batch.DecodeJSONL(encoded)
	if decodeErr != nil {
		t.Fatalf("decode: %v", decodeErr)
	}
	if len(decoded) != 1 || decoded[0].CustomID != requests[0].CustomID {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	if _, err := batch.DecodeJSONL([]byte("{not json}\n")); err == nil {
		t.Fatal("expected decode error for malformed line")
	}
}

func TestCustomIDIndex(t *testing.T) {
	testCases := []struct {
		name        string
		customID    string
		expected    int
		expectError bool
	}{
		{name: "simple", customID: "familiarity_task_12", expected: 12},
		{name: "experiment name containing infix", customID: "my_task_set_task_3", expected: 3},
		{name: "missing infix", customID: "familiarity-12", expectError: true},
		{name: "non-numeric suffix", customID: "familiarity_task_abc", expectError: true},
		{name: "zero row", customID: "familiarity_task_0", expectError: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			rowNumber, parseErr := batch.CustomIDIndex(testCase.customID)
			if testCase.expectError {
				if parseErr == nil {
					t.Fatal("expected error")
				}
				return
			}
			if parseErr != nil {
				t.Fatalf("parse: %v", parseErr)
			}
			if rowNumber != testCase.expected {
				t.Fatalf("expected %d, got %d", testCase.expected, rowNumber)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	timestamp := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)
	name := batch.FileName(experimentName, 2, timestamp)
	if name != "familiarity_batch_2_2025-03-14-09-26.jsonl" {
		t.Fatalf("unexpected batch file name %q", name)
	}
}
