package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type suspect struct {
	Location string `json:"location" yaml:"location"`
	Count    int    `json:"count"    yaml:"count"`
}

type sample struct {
	Crash   string    `json:"crash"   yaml:"crash"`
	Slice   int       `json:"slice"   yaml:"slice"`
	Suspect []suspect `json:"suspect" yaml:"suspect"`
}

func newSample() sample {
	return sample{
		Crash: "s1:id:000003,sig:11,src:000001",
		Slice: 12,
		Suspect: []suspect{
			{Location: "/src/parse.c:parse:40:9", Count: 3},
			{Location: "/src/lex.c:next:7:1", Count: 1},
		},
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{NewJSONCodec(), NewYAMLCodec()} {
		t.Run(codec.Extension(), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			require.NoError(t, codec.Encode(&buf, newSample()))

			var decoded sample

			require.NoError(t, codec.Decode(&buf, &decoded))
			assert.Equal(t, newSample(), decoded)
		})
	}
}

func TestJSONCodec_ReportIndent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&buf, sample{Crash: "c"}))

	assert.Contains(t, buf.String(), "\n"+ReportIndent+`"crash": "c"`)
}

func TestJSONCodec_Compact(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, (&JSONCodec{}).Encode(&buf, newSample()))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "only the encoder's trailing newline")
}

func TestYAMLCodec_Layout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewYAMLCodec().Encode(&buf, newSample()))

	assert.Contains(t, buf.String(), "slice: 12\n")
	assert.Contains(t, buf.String(), "\n  - location: /src/parse.c:parse:40:9\n")
}

func TestCodecs_Errors(t *testing.T) {
	t.Parallel()

	var decoded sample

	err := NewJSONCodec().Decode(strings.NewReader(`{"crash": `), &decoded)
	require.ErrorContains(t, err, "json decode")

	err = NewJSONCodec().Encode(&bytes.Buffer{}, func() {})
	require.ErrorContains(t, err, "json encode")

	err = NewYAMLCodec().Decode(strings.NewReader("suspect: [unterminated"), &decoded)
	require.ErrorContains(t, err, "yaml decode")
}

func TestCodecFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		ext    string
	}{
		{"json", ".json"},
		{"", ".json"},
		{"YAML", ".yaml"},
		{"yml", ".yaml"},
	}

	for _, tt := range tests {
		c, err := CodecFor(tt.format)
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.ext, c.Extension(), tt.format)
	}

	_, err := CodecFor("toml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCodecForPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".yaml", CodecForPath("/fuzz/sancov/delta-diff/c.YML").Extension())
	assert.Equal(t, ".yaml", CodecForPath("c.yaml").Extension())
	assert.Equal(t, ".json", CodecForPath("c.json").Extension())
	assert.Equal(t, ".json", CodecForPath("c").Extension())
}

func TestWriteReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, codec := range []Codec{NewJSONCodec(), NewYAMLCodec()} {
		path := filepath.Join(dir, "report"+codec.Extension())

		require.NoError(t, WriteFile(path, codec, newSample()))

		var loaded sample

		require.NoError(t, ReadFile(path, codec, &loaded))
		assert.Equal(t, newSample(), loaded)
	}
}

func TestWriteFile_Replaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, WriteFile(path, NewJSONCodec(), newSample()))
	require.NoError(t, WriteFile(path, NewJSONCodec(), sample{Crash: "second"}))

	var loaded sample

	require.NoError(t, ReadFile(path, NewJSONCodec(), &loaded))
	assert.Equal(t, "second", loaded.Crash)
	assert.Empty(t, loaded.Suspect)
}

func TestReadFile_NotFound(t *testing.T) {
	t.Parallel()

	var loaded sample

	err := ReadFile(filepath.Join(t.TempDir(), "missing.json"), NewJSONCodec(), &loaded)

	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	t.Parallel()

	err := WriteFile(filepath.Join(t.TempDir(), "no", "such", "report.json"), NewJSONCodec(), newSample())

	require.ErrorContains(t, err, "create")
}

func TestWriteFile_EncodeError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := WriteFile(filepath.Join(dir, "bad.json"), NewJSONCodec(), make(chan int))
	require.ErrorContains(t, err, "encode")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the temporary file is removed")
}

func TestWriteFile_Mode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteFile(path, NewJSONCodec(), newSample()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestReadFile_DecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crash: [\n"), 0o600))

	var loaded sample

	err := ReadFile(path, NewYAMLCodec(), &loaded)

	require.ErrorContains(t, err, "decode")
}
