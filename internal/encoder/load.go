package encoder

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/banshee-data/polarization.report/internal/fsutil"
)

// Load reads an encoder log of timestamp-in-milliseconds -> count pairs.
// The serialisation is picked from the file extension: .json (object),
// .cbor (map) or .csv/.txt (two columns).
func Load(fsys fsutil.FileSystem, path string) (*Log, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder log: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyLog)
	}

	var samples []Sample
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		samples, err = DecodeJSON(data)
	case ".cbor":
		samples, err = DecodeCBOR(data)
	case ".csv", ".txt":
		samples, err = DecodeCSV(strings.NewReader(string(data)))
	default:
		return nil, fmt.Errorf("unsupported encoder log format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse encoder log %s: %w", path, err)
	}

	log, err := NewLog(samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return log, nil
}

// DecodeJSON parses an object of the form {"<ms>": count, ...}. Samples are
// returned in document order so that duplicate timestamps spelled
// differently ("1000", "1e3") resolve the same way on every load.
func DecodeJSON(data []byte) ([]Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var samples []Sample
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string) // object keys are always strings
		ms, err := strconv.ParseFloat(strings.TrimSpace(key), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp key %q: %w", key, err)
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		var raw string
		switch v := tok.(type) {
		case json.Number:
			raw = v.String()
		case string:
			raw = v
		default:
			return nil, fmt.Errorf("invalid count for %q: %v", key, tok)
		}
		count, err := parseCount(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid count for %q: %w", key, err)
		}
		samples = append(samples, Sample{Timestamp: ms / 1000.0, Count: count})
	}

	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after object")
	}
	return samples, nil
}

// DecodeCBOR parses a CBOR map keyed by millisecond timestamps, keeping the
// pairs in wire order.
func DecodeCBOR(data []byte) ([]Sample, error) {
	n, rest, err := cborMapHeader(data)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for i := 0; n < 0 || i < n; i++ {
		if n < 0 {
			if len(rest) == 0 {
				return nil, io.ErrUnexpectedEOF
			}
			if rest[0] == cborBreak {
				rest = rest[1:]
				break
			}
		}

		var key, val interface{}
		if rest, err = cbor.UnmarshalFirst(rest, &key); err != nil {
			return nil, fmt.Errorf("pair %d key: %w", i, err)
		}
		if rest, err = cbor.UnmarshalFirst(rest, &val); err != nil {
			return nil, fmt.Errorf("pair %d value: %w", i, err)
		}

		ms, ok := toFloat(key)
		if !ok {
			return nil, fmt.Errorf("invalid timestamp key %v (%T)", key, key)
		}
		c, ok := toFloat(val)
		if !ok || c != math.Trunc(c) {
			return nil, fmt.Errorf("invalid count %v for key %v", val, key)
		}
		samples = append(samples, Sample{Timestamp: ms / 1000.0, Count: int64(c)})
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d bytes of unexpected data after map", len(rest))
	}
	return samples, nil
}

const (
	cborMajorMap = 5
	cborBreak    = 0xff
)

// cborMapHeader decodes the head of a top-level map. n is the pair count, or
// -1 for an indefinite-length map terminated by a break byte.
func cborMapHeader(data []byte) (n int, rest []byte, err error) {
	if len(data) == 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	if major := data[0] >> 5; major != cborMajorMap {
		return 0, nil, fmt.Errorf("expected a CBOR map, got major type %d", major)
	}
	info := data[0] & 0x1f
	data = data[1:]

	var size int
	switch {
	case info < 24:
		return int(info), data, nil
	case info == 24:
		size = 1
	case info == 25:
		size = 2
	case info == 26:
		size = 4
	case info == 27:
		size = 8
	case info == 31:
		return -1, data, nil
	default:
		return 0, nil, fmt.Errorf("malformed CBOR map header 0x%02x", info)
	}
	if len(data) < size {
		return 0, nil, io.ErrUnexpectedEOF
	}
	var v uint64
	for _, b := range data[:size] {
		v = v<<8 | uint64(b)
	}
	if v > uint64(len(data)) {
		// each pair takes at least two bytes
		return 0, nil, fmt.Errorf("CBOR map claims %d pairs in %d bytes", v, len(data))
	}
	return int(v), data[size:], nil
}

// DecodeCSV parses "ms,count" rows. Lines starting with '#' are comments and
// a leading non-numeric row is treated as a header.
func DecodeCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var samples []Sample
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("row %d: expected 2 columns, got %d", line+1, len(rec))
		}

		ms, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if line == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: invalid timestamp %q: %w", line+1, rec[0], err)
		}
		count, err := parseCount(rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid count %q: %w", line+1, rec[1], err)
		}
		samples = append(samples, Sample{Timestamp: ms / 1000.0, Count: count})
	}
	return samples, nil
}

// parseCount accepts integers and integral floats ("1200", "1200.0").
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("count %q is not an integer", s)
	}
	return int64(f), nil
}

// toFloat converts a CBOR-decoded numeric value to float64.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case uint64:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}
