package encoder

import (
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/polarization.report/internal/fsutil"
)

func TestLoad_JSON(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/enc/log.json", []byte(`{
		"1700000002000": 240,
		"1700000000000": 0,
		"1700000001000": 120.0
	}`), 0644))

	log, err := Load(mfs, "/enc/log.json")
	require.NoError(t, err)
	assert.Equal(t, []float64{1700000000, 1700000001, 1700000002}, log.Timestamps)
	assert.Equal(t, []int64{0, 120, 240}, log.Counts)
}

func TestLoad_CBOR(t *testing.T) {
	raw := map[uint64]int64{
		1700000000500: 5,
		1700000000000: 1,
		1700000001000: 9,
	}
	data, err := cbor.Marshal(raw)
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/enc/log.cbor", data, 0644))

	log, err := Load(mfs, "/enc/log.cbor")
	require.NoError(t, err)
	assert.Equal(t, []float64{1700000000, 1700000000.5, 1700000001}, log.Timestamps)
	assert.Equal(t, []int64{1, 5, 9}, log.Counts)
}

func TestLoad_CSVWithHeaderAndDuplicates(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/enc/log.csv", []byte(
		"# encoder dump\n"+
			"time_ms,count\n"+
			"2000,20\n"+
			"1000,10\n"+
			"2000,21\n"), 0644))

	log, err := Load(mfs, "/enc/log.csv")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, log.Timestamps)
	assert.Equal(t, []int64{10, 21}, log.Counts, "duplicate timestamp keeps the last row")
}

func TestLoad_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/enc/empty.json", []byte(`{}`), 0644))
	require.NoError(t, mfs.WriteFile("/enc/zero.json", nil, 0644))
	require.NoError(t, mfs.WriteFile("/enc/bad.json", []byte(`{"abc": 1}`), 0644))
	require.NoError(t, mfs.WriteFile("/enc/frac.csv", []byte("1000,1.5\n"), 0644))
	require.NoError(t, mfs.WriteFile("/enc/log.pkl", []byte("x"), 0644))

	tests := []struct {
		path      string
		wantEmpty bool
		contains  string
	}{
		{"/enc/empty.json", true, "empty"},
		{"/enc/zero.json", true, "empty"},
		{"/enc/missing.json", false, "failed to read"},
		{"/enc/bad.json", false, "invalid timestamp key"},
		{"/enc/frac.csv", false, "invalid count"},
		{"/enc/log.pkl", false, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := Load(mfs, tt.path)
			require.Error(t, err)
			assert.Equal(t, tt.wantEmpty, errors.Is(err, ErrEmptyLog))
			assert.True(t, strings.Contains(err.Error(), tt.contains), "error %q should mention %q", err, tt.contains)
		})
	}
}

func TestParseCount(t *testing.T) {
	for in, want := range map[string]int64{"12": 12, " -4 ": -4, "2400.0": 2400} {
		got, err := parseCount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "x", "1.25", "inf"} {
		_, err := parseCount(in)
		assert.Error(t, err, in)
	}
}

func TestDecodeJSON_DuplicateSpellingsKeepDocumentOrder(t *testing.T) {
	doc := []byte(`{"1000": 1, "1000.0": 2, "1000.00": 3, "1e3": 4, "2000": 9}`)

	for i := 0; i < 200; i++ {
		samples, err := DecodeJSON(doc)
		require.NoError(t, err)
		require.Len(t, samples, 5)
		assert.Equal(t, []int64{1, 2, 3, 4, 9}, []int64{
			samples[0].Count, samples[1].Count, samples[2].Count, samples[3].Count, samples[4].Count,
		})

		log, err := NewLog(samples)
		require.NoError(t, err)
		require.Equal(t, []float64{1, 2}, log.Timestamps)
		require.Equal(t, int64(4), log.Counts[0], "iteration %d: last key in the document wins", i)
	}
}

func cborPairs(t *testing.T, head []byte, kv ...interface{}) []byte {
	t.Helper()
	out := append([]byte(nil), head...)
	for _, v := range kv {
		b, err := cbor.Marshal(v)
		require.NoError(t, err)
		out = append(out, b...)
	}
	return out
}

func TestDecodeCBOR_DuplicateSpellingsKeepWireOrder(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"definite", cborPairs(t, []byte{0xa3}, uint64(1000), 1, float64(1000), 2, uint64(500), 7)},
		{"indefinite", append(cborPairs(t, []byte{0xbf}, uint64(1000), 1, float64(1000), 2, uint64(500), 7), 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				samples, err := DecodeCBOR(tt.data)
				require.NoError(t, err)
				assert.Equal(t, []Sample{{1, 1}, {1, 2}, {0.5, 7}}, samples)

				log, err := NewLog(samples)
				require.NoError(t, err)
				require.Equal(t, []int64{7, 2}, log.Counts, "iteration %d", i)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeJSON([]byte(`[1, 2]`))
	assert.ErrorContains(t, err, "expected an object")
	_, err = DecodeJSON([]byte(`{"1000": 1} {"2000": 2}`))
	assert.ErrorContains(t, err, "unexpected data")
	_, err = DecodeJSON([]byte(`{"1000": {"x": 1}}`))
	assert.ErrorContains(t, err, "invalid count")

	arr, err := cbor.Marshal([]int{1, 2})
	require.NoError(t, err)
	_, err = DecodeCBOR(arr)
	assert.ErrorContains(t, err, "expected a CBOR map")
	_, err = DecodeCBOR(append(cborPairs(t, []byte{0xa1}, uint64(1000), 1), 0x01))
	assert.ErrorContains(t, err, "unexpected data after map")
	_, err = DecodeCBOR(cborPairs(t, []byte{0xbf}, uint64(1000), 1))
	assert.Error(t, err, "indefinite map without a break")
	_, err = DecodeCBOR([]byte{0xb9, 0xff, 0xff})
	assert.Error(t, err, "pair count larger than the payload")
}
