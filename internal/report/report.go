package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lexibench/batchlab/internal/batch"
	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/dataset"
	"github.com/lexibench/batchlab/internal/fsops"
	"github.com/lexibench/batchlab/internal/workspace"
)

const (
	// StageName identifies the result generator in failure lists and logs.
	StageName = "results"

	outputFileFormat     = "output_%s_%d.xlsx"
	outputSheetName      = "Sheet1"
	outputPermissions    = 0o644
	directoryPermissions = 0o755

	missingBatchFilesErrorFormat  = "no batch files found for experiment %q in %s"
	missingResultFilesErrorFormat = "no result files found for experiment %q in %s"
	noJoinedRowsErrorFormat       = "no result rows could be joined for experiment %q"
	decodeResultErrorFormat       = "decode result file %s line %d: %w"
	writeOutputErrorFormat        = "write output %s: %w"
)

var outputHeader = []string{"expression", "response", "logprob", "weighted_sum"}

// Row is one model response joined back to its source dataset row.
type Row struct {
	Expression  string
	Response    string
	Logprob     float64
	HasLogprob  bool
	WeightedSum float64
}

type TokenLogprob struct {
	Token       string         `json:"token"`
	Logprob     float64        `json:"logprob"`
	TopLogprobs []TokenLogprob `json:"top_logprobs"`
}

type resultEntry struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				Logprobs struct {
					Content []TokenLogprob `json:"content"`
				} `json:"logprobs"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
}

// Stage joins downloaded batch results back to dataset rows and writes the
// per-experiment output spreadsheet.
type Stage struct {
	FS     fsops.FS
	Paths  workspace.Paths
	Config config.Root
	Logger *zap.Logger
	Clock  func() time.Time
}

func (stage Stage) Name() string { return StageName }

// Experiments lists every configured experiment; incomplete ones fail in Run
// and land on the failure list.
func (stage Stage) Experiments() ([]string, error) { return stage.Config.Names(), nil }

// Run builds the output spreadsheet for one experiment.
func (stage Stage) Run(ctx context.Context, experimentName string) error {
	experiment, findErr := stage.Config.Find(experimentName)
	if findErr != nil {
		return findErr
	}
	if validateErr := experiment.Validate(experimentName); validateErr != nil {
		return validateErr
	}

	batchFiles, batchListErr := stage.Paths.BatchFiles(stage.FS, experimentName)
	if batchListErr != nil {
		return batchListErr
	}
	if len(batchFiles) == 0 {
		return fmt.Errorf(missingBatchFilesErrorFormat, experimentName, stage.Paths.Batches)
	}
	resultFiles, resultListErr := stage.Paths.ResultFiles(stage.FS, experimentName)
	if resultListErr != nil {
		return resultListErr
	}
	if len(resultFiles) == 0 {
		return fmt.Errorf(missingResultFilesErrorFormat, experimentName, stage.Paths.Results)
	}

	rows, datasetErr := dataset.LoadColumn(stage.FS, filepath.Join(stage.Paths.Data, experiment.DatasetName), experiment.DatasetColumn)
	if datasetErr != nil {
		return datasetErr
	}

	requestIDs, requestErr := stage.decodeRequestIDs(batchFiles)
	if requestErr != nil {
		return requestErr
	}
	entries, entriesErr := stage.decodeResults(resultFiles)
	if entriesErr != nil {
		return entriesErr
	}

	joined := stage.join(experimentName, entries, rows, experiment.ScaleMax, requestIDs)
	if len(joined) == 0 {
		return fmt.Errorf(noJoinedRowsErrorFormat, experimentName)
	}

	outputPath, writeErr := stage.writeOutput(experimentName, joined)
	if writeErr != nil {
		return writeErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	stage.Logger.Info("output spreadsheet written",
		zap.String("experiment", experimentName),
		zap.String("file", outputPath),
		zap.Int("rows", len(joined)))
	return nil
}

// decodeRequestIDs collects the custom ids of every submitted request so the
// join can reject results that answer nothing this experiment asked.
func (stage Stage) decodeRequestIDs(batchFiles []string) (map[string]bool, error) {
	requestIDs := map[string]bool{}
	for _, batchFileName := range batchFiles {
		content, readErr := stage.FS.ReadFile(filepath.Join(stage.Paths.Batches, batchFileName))
		if readErr != nil {
			return nil, readErr
		}
		requests, decodeErr := batch.DecodeJSONL(content)
		if decodeErr != nil {
			return nil, decodeErr
		}
		for _, request := range requests {
			requestIDs[request.CustomID] = true
		}
	}
	return requestIDs, nil
}

func (stage Stage) decodeResults(resultFiles []string) ([]resultEntry, error) {
	var entries []resultEntry
	for _, resultFileName := range resultFiles {
		content, readErr := stage.FS.ReadFile(filepath.Join(stage.Paths.Results, resultFileName))
		if readErr != nil {
			return nil, readErr
		}
		for lineNumber, line := range strings.Split(string(content), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			var entry resultEntry
			if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
				return nil, fmt.Errorf(decodeResultErrorFormat, resultFileName, lineNumber+1, err)
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// join matches each result entry to its dataset row via the custom id row
// number. Unmatched, malformed or out-of-range ids are skipped, not fatal.
func (stage Stage) join(experimentName string, entries []resultEntry, rows []string, scaleMax int, requestIDs map[string]bool) []Row {
	var joined []Row
	for _, entry := range entries {
		if !requestIDs[entry.CustomID] {
			stage.Logger.Warn("skipping result without matching batch request",
				zap.String("experiment", experimentName),
				zap.String("custom_id", entry.CustomID))
			continue
		}
		rowNumber, idErr := batch.CustomIDIndex(entry.CustomID)
		if idErr != nil {
			stage.Logger.Warn("skipping result with malformed custom id",
				zap.String("experiment", experimentName),
				zap.String("custom_id", entry.CustomID))
			continue
		}
		if rowNumber > len(rows) {
			stage.Logger.Warn("skipping result with out-of-range row number",
				zap.String("experiment", experimentName),
				zap.String("custom_id", entry.CustomID),
				zap.Int("row", rowNumber),
				zap.Int("dataset_rows", len(rows)))
			continue
		}
		if len(entry.Response.Body.Choices) == 0 {
			stage.Logger.Warn("skipping result without choices",
				zap.String("experiment", experimentName),
				zap.String("custom_id", entry.CustomID))
			continue
		}

		choice := entry.Response.Body.Choices[0]
		row := Row{
			Expression: rows[rowNumber-1],
			Response:   choice.Message.Content,
		}
		if len(choice.Logprobs.Content) > 0 {
			firstToken := choice.Logprobs.Content[0]
			row.Logprob = firstToken.Logprob
			row.HasLogprob = true
			row.WeightedSum = WeightedScaleSum(firstToken.TopLogprobs, scaleMax)
		}
		joined = append(joined, row)
	}
	return joined
}

// WeightedScaleSum converts the first response token's alternatives into an
// expected rating: for every scale value 1..scaleMax appearing among the top
// logprobs (first occurrence only), it accumulates value * exp(logprob).
func WeightedScaleSum(alternatives []TokenLogprob, scaleMax int) float64 {
	weightedSum := 0.0
	seen := map[int]bool{}
	for _, alternative := range alternatives {
		value, parseErr := strconv.Atoi(strings.TrimSpace(alternative.Token))
		if parseErr != nil || value < 1 || value > scaleMax || seen[value] {
			continue
		}
		seen[value] = true
		weightedSum += float64(value) * math.Exp(alternative.Logprob)
	}
	return weightedSum
}

func (stage Stage) writeOutput(experimentName string, joined []Row) (string, error) {
	outputDirectory := filepath.Join(stage.Paths.Outputs, experimentName)
	if err := stage.FS.MkdirAll(outputDirectory, directoryPermissions); err != nil {
		return "", err
	}
	outputFileName := fmt.Sprintf(outputFileFormat, experimentName, stage.Clock().Unix())
	outputPath := filepath.Join(outputDirectory, outputFileName)

	workbook := excelize.NewFile()
	defer func() { _ = workbook.Close() }()

	for columnIndex, name := range outputHeader {
		cell, cellErr := excelize.CoordinatesToCellName(columnIndex+1, 1)
		if cellErr != nil {
			return "", cellErr
		}
		if err := workbook.SetCellValue(outputSheetName, cell, name); err != nil {
			return "", fmt.Errorf(writeOutputErrorFormat, outputPath, err)
		}
	}
	for rowIndex, row := range joined {
		values := []any{row.Expression, row.Response, nil, nil}
		if row.HasLogprob {
			values[2] = row.Logprob
			values[3] = row.WeightedSum
		}
		for columnIndex, value := range values {
			if value == nil {
				continue
			}
			cell, cellErr := excelize.CoordinatesToCellName(columnIndex+1, rowIndex+2)
			if cellErr != nil {
				return "", cellErr
			}
			if err := workbook.SetCellValue(outputSheetName, cell, value); err != nil {
				return "", fmt.Errorf(writeOutputErrorFormat, outputPath, err)
			}
		}
	}

	var buffer bytes.Buffer
	if err := workbook.Write(&buffer); err != nil {
		return "", fmt.Errorf(writeOutputErrorFormat, outputPath, err)
	}
	if err := stage.FS.WriteFile(outputPath, buffer.Bytes(), outputPermissions); err != nil {
		return "", fmt.Errorf(writeOutputErrorFormat, outputPath, err)
	}
	return outputPath, nil
}
