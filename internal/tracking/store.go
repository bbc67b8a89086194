package tracking

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	// FileName is the tracking workbook kept under the results directory.
	FileName = "batch_tracking.xlsx"

	sheetName       = "Sheet1"
	filePermissions = 0o644
	columnCount     = 6

	openStoreErrorFormat  = "open tracking file %s: %w"
	readStoreErrorFormat  = "read tracking file %s: %w"
	writeStoreErrorFormat = "write tracking file %s: %w"
	cellNameErrorFormat   = "tracking cell name: %w"
)

var headerRow = []string{"experiment_name", "batch_file", "batch_id", "status", "timestamp", "file_hash"}

// Record tracks one submitted batch until it reaches a terminal state and is
// downloaded or written off.
type Record struct {
	Experiment string
	BatchFile  string
	BatchID    string
	Status     string
	Timestamp  string
	FileHash   string
}

// Store persists tracking records as an xlsx workbook. The file exists only
// while at least one batch is outstanding.
type Store struct {
	fileSystem fsops.FS
	path       string
}

// NewStore opens the tracking store under a results directory.
func NewStore(fileSystem fsops.FS, resultsDirectory string) *Store {
	return &Store{fileSystem: fileSystem, path: filepath.Join(resultsDirectory, FileName)}
}

// Path returns the tracking workbook location.
func (store *Store) Path() string { return store.path }

// HashBytes fingerprints batch file content to detect resubmissions of
// changed files.
func HashBytes(content []byte) string {
	digest := md5.Sum(content)
	return hex.EncodeToString(digest[:])
}

// Load reads every record; a missing file means an empty store.
func (store *Store) Load() ([]Record, error) {
	content, readErr := store.fileSystem.ReadFile(store.path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil
		}
		return nil, fmt.Errorf(readStoreErrorFormat, store.path, readErr)
	}

	workbook, openErr := excelize.OpenReader(bytes.NewReader(content))
	if openErr != nil {
		return nil, fmt.Errorf(openStoreErrorFormat, store.path, openErr)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, rowsErr := workbook.GetRows(sheets[0])
	if rowsErr != nil {
		return nil, fmt.Errorf(readStoreErrorFormat, store.path, rowsErr)
	}

	var records []Record
	for rowIndex, row := range rows {
		if rowIndex == 0 {
			continue
		}
		padded := make([]string, columnCount)
		copy(padded, row)
		records = append(records, Record{
			Experiment: padded[0],
			BatchFile:  padded[1],
			BatchID:    padded[2],
			Status:     padded[3],
			Timestamp:  padded[4],
			FileHash:   padded[5],
		})
	}
	return records, nil
}

// Save rewrites the store; an empty record set removes the file entirely.
func (store *Store) Save(records []Record) error {
	if len(records) == 0 {
		removeErr := store.fileSystem.Remove(store.path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf(writeStoreErrorFormat, store.path, removeErr)
		}
		return nil
	}

	workbook := excelize.NewFile()
	defer func() { _ = workbook.Close() }()

	allRows := [][]string{headerRow}
	for _, record := range records {
		allRows = append(allRows, []string{
			record.Experiment, record.BatchFile, record.BatchID,
			record.Status, record.Timestamp, record.FileHash,
		})
	}
	for rowIndex, row := range allRows {
		for columnIndex, value := range row {
			cell, cellErr := excelize.CoordinatesToCellName(columnIndex+1, rowIndex+1)
			if cellErr != nil {
				return fmt.Errorf(cellNameErrorFormat, cellErr)
			}
			if err := workbook.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf(writeStoreErrorFormat, store.path, err)
			}
		}
	}

	var buffer bytes.Buffer
	if err := workbook.Write(&buffer); err != nil {
		return fmt.Errorf(writeStoreErrorFormat, store.path, err)
	}
	return store.fileSystem.WriteFile(store.path, buffer.Bytes(), filePermissions)
}

// Append adds a new record.
func (store *Store) Append(record Record) error {
	records, loadErr := store.Load()
	if loadErr != nil {
		return loadErr
	}
	return store.Save(append(records, record))
}

// UpdateStatus rewrites the status of a tracked batch.
func (store *Store) UpdateStatus(batchID string, status string) error {
	records, loadErr := store.Load()
	if loadErr != nil {
		return loadErr
	}
	for index := range records {
		if records[index].BatchID == batchID {
			records[index].Status = status
		}
	}
	return store.Save(records)
}

// Remove drops a tracked batch, deleting the file once nothing remains.
func (store *Store) Remove(batchID string) error {
	records, loadErr := store.Load()
	if loadErr != nil {
		return loadErr
	}
	var remaining []Record
	for _, record := range records {
		if record.BatchID != batchID {
			remaining = append(remaining, record)
		}
	}
	return store.Save(remaining)
}

// Has reports whether a batch file with identical content is already tracked
// for the experiment.
func (store *Store) Has(experimentName string, batchFile string, fileHash string) (bool, error) {
	records, loadErr := store.Load()
	if loadErr != nil {
		return false, loadErr
	}
	for _, record := range records {
		if record.Experiment == experimentName && record.BatchFile == batchFile && record.FileHash == fileHash {
			return true, nil
		}
	}
	return false, nil
}
