package product

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrEmptyArtifact is returned when an artifact holds no records.
var ErrEmptyArtifact = errors.New("artifact contains no records")

// ArtifactContentType is the content type used when the batch is stored.
const ArtifactContentType = "application/json; charset=utf-8"

// CSVContentType is the content type of the tabular export.
const CSVContentType = "text/csv; charset=utf-8"

// CSVHeader lists the columns of the tabular export in order.
var CSVHeader = []string{"Name", "Type", "Regular price", "Description", "Categories", "Images"}

// EncodeJSON writes the batch as an indented JSON array. Non-ASCII text is
// written verbatim.
func EncodeJSON(w io.Writer, batch []Record) error {
	if batch == nil {
		batch = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(batch); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// MarshalJSON is a convenience wrapper around EncodeJSON.
func MarshalJSON(batch []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, batch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeJSON reads a batch previously written by EncodeJSON.
func DecodeJSON(r io.Reader) ([]Record, error) {
	var batch []Record
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(batch) == 0 {
		return nil, ErrEmptyArtifact
	}
	return batch, nil
}

// CSVRow is one line of the tabular export.
type CSVRow struct {
	Name         string
	Type         string
	RegularPrice int64
	Description  string
	Categories   string
	Images       string
}

func (r CSVRow) values() []string {
	return []string{
		r.Name,
		r.Type,
		strconv.FormatInt(r.RegularPrice, 10),
		r.Description,
		r.Categories,
		r.Images,
	}
}

// EncodeCSV writes the rows with the export header.
func EncodeCSV(w io.Writer, rows []CSVRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.values()); err != nil {
			return fmt.Errorf("write csv row %q: %w", row.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
