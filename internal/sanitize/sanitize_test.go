package sanitize

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run sanitizes data in one Write call.
func run(t *testing.T, data []byte) []byte {
	t.Helper()
	return runChunks(t, data)
}

// runChunks sanitizes the concatenation of chunks, one Write per chunk.
func runChunks(t *testing.T, chunks ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	s := New(&out)
	for _, c := range chunks {
		n, err := s.Write(c)
		require.NoError(t, err)
		require.Equal(t, len(c), n)
	}
	require.NoError(t, s.Close())
	assert.Equal(t, int64(out.Len()), s.OutputBytes())
	return out.Bytes()
}

// splitAt cuts data at every offset in cuts, which must be ascending.
func splitAt(data []byte, cuts ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, c := range cuts {
		chunks = append(chunks, data[prev:c])
		prev = c
	}
	return append(chunks, data[prev:])
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "ascii", in: "hello", want: "hello"},
		{name: "whitespace controls kept", in: "a\tb\r\nc", want: "a\tb\r\nc"},
		{name: "noise collapse", in: "hello\x01\x02\x03world", want: "hello\x00world"},
		{name: "nul counts as binary", in: "hello\x00\x01\x02\x03world", want: "hello\x00world"},
		{name: "two binaries tolerated", in: "ab\x01\x02cd", want: "ab\x01\x02cd"},
		{name: "short run dropped", in: "abc\x01\x02\x03xyz", want: "xyz"},
		{name: "short run dropped at end", in: "ab\x01\x02\x03", want: ""},
		{name: "four byte run kept", in: "abcd\x01\x02\x03", want: "abcd\x00"},
		{name: "leading binaries dropped", in: "\x01\x02hello", want: "hello"},
		{name: "lone binary before text dropped", in: "\x01hello", want: "hello"},
		{name: "trailing tolerated binaries kept", in: "hello\x01\x02", want: "hello\x01\x02"},
		{name: "del is binary", in: "abcd\x7f\x7f\x7fefgh", want: "abcd\x00efgh"},
		{name: "stray continuation is binary", in: "abcd\x80\x81\x82efgh", want: "abcd\x00efgh"},
		{name: "invalid lead bytes", in: "abcd\xf8\xfe\xffefgh", want: "abcd\x00efgh"},
		{name: "two byte utf8", in: "caf\xc3\xa9", want: "caf\xc3\xa9"},
		{name: "three byte utf8", in: "\xe2\x82\xac10", want: "\xe2\x82\xac10"},
		{name: "four byte utf8", in: "\xf0\x9f\x98\x80!", want: "\xf0\x9f\x98\x80!"},
		{name: "binary only", in: strings.Repeat("\x00", 64), want: ""},
		{name: "many short runs", in: "ab\x00\x00\x00cd\x00\x00\x00ef", want: "ef"},
		{name: "incomplete sequence at eof", in: "abcd\xe2\x82", want: "abcd\xe2\x82"},
		{name: "lone lead at eof", in: "abcd\xf0", want: "abcd\xf0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := run(t, []byte(tt.in))
			assert.Equal(t, []byte(tt.want), got, "%q", got)
		})
	}
}

func TestSanitize_InvalidContinuationResumesAtNextByte(t *testing.T) {
	t.Parallel()

	// The first lead fails on the second byte, which is itself a valid lead
	// and must be scanned again rather than skipped.
	got := run(t, []byte("\xe2\xe2\x82\xac"))
	assert.Equal(t, []byte("\xe2\x82\xac"), got)

	// The lead is reclassified alone; the continuation that followed it is
	// then a stray continuation and counts as a second binary byte.
	got = run(t, []byte("wxyz\xe2\x82A"))
	assert.Equal(t, []byte("wxyz\xe2\x82A"), got)

	got = run(t, []byte("wxyz\xe2\x82\x01A"))
	assert.Equal(t, []byte("wxyz\x00A"), got)
}

func TestSanitize_PureTextIsUnchangedAcrossChunking(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	alphabet := []byte("abcdefghijklmnopqrstuvwxyz0123456789 .,;:\t\r\n{}()[]<>=+-*/")
	data := make([]byte, 4096)
	for i := range data {
		data[i] = alphabet[rng.Intn(len(alphabet))]
	}

	assert.Equal(t, data, run(t, data))
	for _, size := range []int{1, 2, 3, 7, 250, 251, 255, 256, 1000} {
		var chunks [][]byte
		for off := 0; off < len(data); off += size {
			chunks = append(chunks, data[off:min(off+size, len(data))])
		}
		assert.Equal(t, data, runChunks(t, chunks...), "chunk size %d", size)
	}
}

func TestSanitize_MultiByteAcrossChunks(t *testing.T) {
	t.Parallel()

	euro := []byte("price \xe2\x82\xac5")
	whole := run(t, euro)
	assert.Equal(t, euro, whole)

	for cut := 1; cut < len(euro); cut++ {
		assert.Equal(t, whole, runChunks(t, splitAt(euro, cut)...), "cut at %d", cut)
	}

	// One byte per chunk for a four byte sequence.
	smile := []byte("\xf0\x9f\x98\x80 ok")
	assert.Equal(t, run(t, smile), runChunks(t, splitAt(smile, 1, 2, 3)...))
}

func TestSanitize_LongRunsFlushWithoutSeparator(t *testing.T) {
	t.Parallel()

	long := bytes.Repeat([]byte("a"), 1000)
	assert.Equal(t, long, run(t, long))

	in := append(bytes.Repeat([]byte("a"), 300), "\x01\x02\x03bcde"...)
	want := append(bytes.Repeat([]byte("a"), 300), "\x00bcde"...)
	assert.Equal(t, want, run(t, in))
}

func TestSanitize_LongRunFlushKeepsUTF8Together(t *testing.T) {
	t.Parallel()

	// 249 ASCII bytes put a three byte sequence across the 250 byte boundary.
	in := append(bytes.Repeat([]byte("x"), 249), "\xe2\x82\xac"...)
	in = append(in, bytes.Repeat([]byte("y"), 10)...)
	assert.Equal(t, in, run(t, in))
	assert.Equal(t, in, runChunks(t, splitAt(in, 250, 251)...))
}

func TestSanitize_RandomInputIsChunkIndependent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		data := make([]byte, 2048)
		for i := range data {
			switch rng.Intn(4) {
			case 0:
				data[i] = byte(rng.Intn(256))
			default:
				data[i] = byte('a' + rng.Intn(26))
			}
		}
		whole := run(t, data)
		assert.LessOrEqual(t, len(whole), len(data)+len(data)/3+1)

		var chunks [][]byte
		for off := 0; off < len(data); {
			n := 1 + rng.Intn(17)
			end := min(off+n, len(data))
			chunks = append(chunks, data[off:end])
			off = end
		}
		assert.Equal(t, whole, runChunks(t, chunks...), "iteration %d", iter)
	}
}

func TestSanitize_CountsBytes(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := New(&out)
	_, err := s.Write([]byte("hello\x01\x02\x03world"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, int64(13), s.InputBytes())
	assert.Equal(t, int64(11), s.OutputBytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSanitize_WriterErrorIsSticky(t *testing.T) {
	t.Parallel()

	s := New(failingWriter{})
	_, err := s.Write(bytes.Repeat([]byte("a"), 300))
	require.Error(t, err)

	_, err = s.Write([]byte("b"))
	require.Error(t, err)
	require.Error(t, s.Close())
}
