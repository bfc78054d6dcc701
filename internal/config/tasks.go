package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrFillTasks is returned after a template tasks file was written because
// none existed. The user has to fill it in before anything can run.
var ErrFillTasks = errors.New("tasks file was missing; a template was written, fill it in")

var tasksHeader = []string{"name", "product_ids", "cookies", "retry_delay", "cart_total_price_limit"}

// ReadTasks loads every valid record from the tasks CSV at path.
// Rows that can't be parsed are skipped with a warning.
func ReadTasks(path string, log *logrus.Entry) ([]TaskRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := WriteDefaultTasks(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", path, ErrFillTasks)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // validated per row so one bad row doesn't abort the file
	r.TrimLeadingSpace = true

	var records []TaskRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), tasksHeader[0]) {
			continue
		}

		rec, err := parseTaskRow(row)
		if err != nil {
			log.WithFields(logrus.Fields{"file": path, "line": line}).WithError(err).Warn("skipping task row")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseTaskRow(row []string) (TaskRecord, error) {
	if len(row) != len(tasksHeader) {
		return TaskRecord{}, fmt.Errorf("expected %d fields, got %d", len(tasksHeader), len(row))
	}

	productIDs, err := ParseProductIDs(row[1])
	if err != nil {
		return TaskRecord{}, err
	}

	delayMs, err := strconv.ParseUint(strings.TrimSpace(row[3]), 10, 64)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("retry_delay: %w", err)
	}

	limit, err := strconv.ParseUint(strings.TrimSpace(row[4]), 10, 64)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("cart_total_price_limit: %w", err)
	}

	return TaskRecord{
		Name:                strings.TrimSpace(row[0]),
		ProductIDs:          productIDs,
		Cookies:             strings.TrimSpace(row[2]),
		RetryDelay:          time.Duration(delayMs) * time.Millisecond,
		CartTotalPriceLimit: limit,
	}, nil
}

// ParseProductIDs parses a semicolon-separated list such as "221;222;223".
func ParseProductIDs(s string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("product id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no product ids in %q", s)
	}
	return ids, nil
}

// WriteTasks writes records to path with a header row.
func WriteTasks(path string, records []TaskRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tasksHeader); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	for _, rec := range records {
		ids := make([]string, len(rec.ProductIDs))
		for i, id := range rec.ProductIDs {
			ids[i] = strconv.FormatUint(id, 10)
		}
		row := []string{
			rec.Name,
			strings.Join(ids, ";"),
			rec.Cookies,
			strconv.FormatInt(rec.RetryDelay.Milliseconds(), 10),
			strconv.FormatUint(rec.CartTotalPriceLimit, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// WriteDefaultTasks writes a tasks file holding a single template record.
func WriteDefaultTasks(path string) error {
	return WriteTasks(path, []TaskRecord{DefaultTaskRecord()})
}
