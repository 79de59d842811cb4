// Package export writes crawled records to files for spreadsheet users.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/user/doorplate-crawler/internal/entity"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
	header  = []string{"行政區", "地址", "編釘日期", "編釘類別"}
)

// DefaultFilename returns the timestamped name used when none is given.
func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("doorplate_data_%s.csv", now.Format("20060102_150405"))
}

// WriteCSV writes records with a BOM so spreadsheet tools detect UTF-8.
// Edit type codes are written as their display names.
func WriteCSV(w io.Writer, records []entity.RawRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.District, r.Address, r.Date, entity.EditTypeName(r.EditTypeCode)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes records to path, or to DefaultFilename in dir when path is a
// directory or empty. No file is created for zero records and "" is returned.
func SaveCSV(path string, records []entity.RawRecord, now time.Time) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if path == "" {
		path = DefaultFilename(now)
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, DefaultFilename(now))
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
