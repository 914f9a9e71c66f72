// Package imports reads external data into dataframes: CSV with
// delimiter and encoding sniffing, Excel workbooks and ranges via
// excelize, host-resolved dataframes, Snowflake tables, and
// user-registered importers. It also keeps the importable-files index
// the query API serves.
package imports

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

// CSVOptions control one CSV read. Zero values mean "sniff".
type CSVOptions struct {
	Delimiter  string                  `json:"delimeter,omitempty"`
	Encoding   string                  `json:"encoding,omitempty"`
	HasHeaders bool                    `json:"has_headers"`
	Skiprows   int                     `json:"skiprows"`
	DTypes     map[string]values.DType `json:"dtypes,omitempty"`
}

// Supported encodings.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16-le"
	EncodingUTF16BE = "utf-16-be"
	EncodingLatin1  = "latin-1"
)

const sniffSample = 64 * 1024

var delimiterCandidates = []byte{',', ';', '\t', '|'}

// SniffCSV guesses the delimiter and encoding from the head of the
// file. The delimiter is the candidate whose per-line count is both
// highest and most consistent across the sampled lines.
func SniffCSV(path string) (delimiter, encoding string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", errs.IO("file_not_found", "cannot open %q", path).WithCause(err)
	}
	defer f.Close()

	sample := make([]byte, sniffSample)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return "", "", errs.IO("file_unreadable", "cannot read %q", path).WithCause(err)
	}
	sample = sample[:n]

	encoding = sniffEncoding(sample)
	decoded, err := decodeBytes(sample, encoding)
	if err != nil {
		return "", "", err
	}
	return sniffDelimiter(decoded), encoding, nil
}

func sniffEncoding(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	case utf8.Valid(sample):
		return EncodingUTF8
	default:
		return EncodingLatin1
	}
}

func sniffDelimiter(sample []byte) string {
	lines := bytes.Split(sample, []byte{'\n'})
	if len(lines) > 10 {
		lines = lines[:10]
	}
	best := byte(',')
	bestScore := -1
	for _, cand := range delimiterCandidates {
		counts := map[int]int{}
		for _, line := range lines {
			if len(line) == 0 {
				continue
			}
			counts[bytes.Count(line, []byte{cand})]++
		}
		// score: the most common per-line count, ignoring zero.
		score := 0
		for perLine, freq := range counts {
			if perLine > 0 && freq > score {
				score = freq * perLine
			}
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return string(best)
}

func decodeBytes(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingUTF8:
		return data, nil
	case EncodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return out, err
	case EncodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return out, err
	case EncodingLatin1:
		out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		return out, err
	default:
		return nil, errs.UserConfig("unsupported_encoding", "encoding %q is not supported", encoding)
	}
}

// ReadCSV reads a CSV file into a dataframe. Missing options are
// sniffed; raw headers are deduplicated before column IDs are minted.
func ReadCSV(path string, opts CSVOptions) (*frame.DataFrame, error) {
	if opts.Delimiter == "" || opts.Encoding == "" {
		delim, enc, err := SniffCSV(path)
		if err != nil {
			return nil, err
		}
		if opts.Delimiter == "" {
			opts.Delimiter = delim
		}
		if opts.Encoding == "" {
			opts.Encoding = enc
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("file_unreadable", "cannot read %q", path).WithCause(err)
	}
	decoded, err := decodeBytes(raw, opts.Encoding)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = rune(opts.Delimiter[0])
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.UserConfig("csv_malformed", "cannot parse %q", path).WithCause(err)
	}

	if opts.Skiprows > 0 {
		if opts.Skiprows >= len(records) {
			records = nil
		} else {
			records = records[opts.Skiprows:]
		}
	}
	if len(records) == 0 {
		return nil, errs.DataShape("csv_empty", "%q has no rows after skiprows", path)
	}

	var headers []string
	var rows [][]string
	if opts.HasHeaders {
		headers = records[0]
		rows = records[1:]
	} else {
		width := 0
		for _, rec := range records {
			if len(rec) > width {
				width = len(rec)
			}
		}
		headers = make([]string, width)
		for i := range headers {
			headers[i] = strconv.Itoa(i)
		}
		rows = records
	}
	headers = columns.DeduplicateHeaders(headers)

	df, err := frame.FromRecords(headers, rows)
	if err != nil {
		return nil, err
	}
	return applyDTypeOverrides(df, rows, opts.DTypes)
}

// applyDTypeOverrides rebuilds overridden columns from the raw text, so
// a string override keeps forms inference would destroy ("001").
func applyDTypeOverrides(df *frame.DataFrame, rows [][]string, dtypes map[string]values.DType) (*frame.DataFrame, error) {
	for header, dtype := range dtypes {
		idx := df.ColIndex(header)
		if idx < 0 {
			return nil, errs.UserConfig("dtype_unknown_column",
				"dtype override for %q, which is not a column", header)
		}
		cells := make([]values.Value, len(rows))
		for r, rec := range rows {
			raw := ""
			if idx < len(rec) {
				raw = rec[idx]
			}
			cells[r] = castRaw(raw, dtype)
		}
		df.Cols[idx] = frame.NewSeries(dtype, cells)
	}
	return df, nil
}

func castRaw(raw string, dtype values.DType) values.Value {
	if raw == "" || values.IsNaNLike(values.String(raw)) {
		return values.Null(dtype)
	}
	if dtype == values.TypeString {
		return values.String(raw)
	}
	cast, ok := values.Cast(values.String(raw), dtype)
	if !ok {
		return values.Null(dtype)
	}
	return cast
}
