package bundle

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/codec"
	"schemctl/pkg/format/formattest"
	"schemctl/pkg/geom"
)

func TestRoundTrip(t *testing.T) {
	formattest.RoundTrip(t, Format)
}

func TestTruncated(t *testing.T) {
	formattest.Truncated(t, Format)
}

func largeClipboard(t *testing.T) *clipboard.Clipboard {
	t.Helper()
	c := clipboard.New(geom.NewRegion(geom.V(0, 0, 0), geom.V(31, 7, 31)))
	stone := clipboard.MustParseBlockState("minecraft:stone")
	for x := 0; x < 32; x++ {
		for z := 0; z < 32; z++ {
			if err := c.SetBlock(geom.V(x, 0, z), stone); err != nil {
				t.Fatal(err)
			}
		}
	}
	return c
}

func decodeEnvelope(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	if err := codec.Unmarshal(data[len(Magic)+1:], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestCompressionModes(t *testing.T) {
	tests := []struct {
		name        string
		compression Compression
	}{
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"zstd", CompressionZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := largeClipboard(t)
			var buf bytes.Buffer
			w, err := NewWriterWithCompression(&buf, tt.compression)
			if err != nil {
				t.Fatal(err)
			}
			if err := w.Write(want, formattest.World); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			if env := decodeEnvelope(t, buf.Bytes()); env.Compression != tt.compression {
				t.Errorf("stored compression = %v, want %v", env.Compression, tt.compression)
			}

			got, err := formattest.Decode(Format, buf.Bytes())
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !want.Equal(got) {
				t.Errorf("round trip differs: %s", want.Diff(got))
			}
		})
	}
}

func randomBytes(n int) []byte {
	rng := rand.New(rand.NewSource(1))
	out := make([]byte, n)
	_, _ = rng.Read(out)
	return out
}

func TestCompressIncompressible(t *testing.T) {
	data := randomBytes(4096)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			if _, err := compress(data, c); !errors.Is(err, errIncompressible) {
				t.Errorf("compress() error = %v, want %v", err, errIncompressible)
			}
		})
	}
}

func TestSealFallsBackToNone(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		compression Compression
		want        Compression
	}{
		{"random lz4", randomBytes(4096), CompressionLZ4, CompressionNone},
		{"random zstd", randomBytes(4096), CompressionZstd, CompressionNone},
		{"repetitive lz4", bytes.Repeat([]byte("minecraft:stone "), 256), CompressionLZ4, CompressionLZ4},
		{"repetitive zstd", bytes.Repeat([]byte("minecraft:stone "), 256), CompressionZstd, CompressionZstd},
		{"stored", randomBytes(64), CompressionNone, CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := seal(tt.data, tt.compression)
			if err != nil {
				t.Fatalf("seal() error = %v", err)
			}
			if env.Compression != tt.want {
				t.Errorf("compression = %v, want %v", env.Compression, tt.want)
			}
			if env.Size != len(tt.data) {
				t.Errorf("size = %d, want %d", env.Size, len(tt.data))
			}
			got, err := decompress(env.Payload, env.Compression, env.Size)
			if err != nil {
				t.Fatalf("decompress() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Error("decompressed payload differs")
			}
			if !bytes.Equal(env.Checksum, checksum(tt.data)) {
				t.Error("checksum does not cover the uncompressed payload")
			}
		})
	}
}

func encodeBundle(t *testing.T, env envelope) []byte {
	t.Helper()
	data, err := codec.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return append([]byte(Magic+"\x01"), data...)
}

func storedEnvelope(t *testing.T, p payload) envelope {
	t.Helper()
	data, err := codec.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return envelope{Compression: CompressionNone, Size: len(data), Checksum: checksum(data), Payload: data}
}

func TestReadRejectsHugeRegions(t *testing.T) {
	tests := []struct {
		name   string
		region geom.Region
	}{
		{"volume overflows int", geom.RegionOfSize(geom.V(0, 0, 0), geom.V(1<<21, 1<<21, 1<<21))},
		{"over the cell limit", geom.RegionOfSize(geom.V(0, 0, 0), geom.V(4096, 4096, 4096))},
		{"more cells than bytes", geom.RegionOfSize(geom.V(0, 0, 0), geom.V(512, 512, 64))},
		{"axis spans every int", geom.Region{Min: geom.V(math.MinInt, 0, 0), Max: geom.V(math.MaxInt, 0, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := storedEnvelope(t, payload{Region: tt.region, Palette: []string{"minecraft:air"}, Blocks: []byte{0}})
			if _, err := formattest.Decode(Format, encodeBundle(t, env)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestReadRejectsInflatedSize(t *testing.T) {
	tests := []struct {
		name        string
		compression Compression
		size        int
	}{
		{"lz4 past its ratio", CompressionLZ4, 1 << 29},
		{"zstd size mismatch", CompressionZstd, 1 << 29},
		{"stored size mismatch", CompressionNone, 1 << 29},
		{"past the payload limit", CompressionNone, maxPayload + 1},
		{"negative", CompressionNone, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("minecraft:stone "), 64)
			stored, err := compress(data, tt.compression)
			if err != nil {
				t.Fatal(err)
			}
			env := envelope{Compression: tt.compression, Size: tt.size, Checksum: checksum(data), Payload: stored}
			if _, err := formattest.Decode(Format, encodeBundle(t, env)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestChecksumMismatch(t *testing.T) {
	data := formattest.Encode(t, Format, formattest.Sample(t))
	env := decodeEnvelope(t, data)
	env.Checksum[0] ^= 0xff

	if _, err := formattest.Decode(Format, encodeBundle(t, env)); !errors.Is(err, ErrChecksum) {
		t.Errorf("Read() error = %v, want %v", err, ErrChecksum)
	}
}

func TestBadHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"wrong magic", []byte("WECX\x01")},
		{"future version", []byte("WECB\x09")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := formattest.Decode(Format, tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompression(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCompression(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression(brotli) should fail")
	}
	if _, err := NewWriterWithCompression(&bytes.Buffer{}, Compression(9)); err == nil {
		t.Error("NewWriterWithCompression with unknown tag should fail")
	}
}
