// Package bundle implements the .weclip clipboard bundle: the magic "WECB",
// a version byte, and a CBOR envelope holding a compressed payload and its
// keyed BLAKE3 checksum.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/codec"
	"schemctl/pkg/format"
	"schemctl/pkg/format/internal/blockdata"
	"schemctl/pkg/geom"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

const (
	Magic   = "WECB"
	Version = 1

	maxPayload = 1 << 30

	// an LZ4 block never expands its input by more than this factor
	lz4MaxRatio = 255
)

var (
	ErrChecksum = errors.New("bundle: payload checksum mismatch")

	errIncompressible = errors.New("bundle: payload is incompressible")
	errWritten        = errors.New("bundle: writer already holds a clipboard")
)

var Format = format.Descriptor{
	Name:       "bundle",
	Aliases:    []string{"bundle", "weclip", "clip"},
	Extensions: []string{"weclip"},
	Reader:     NewReader,
	Writer:     NewWriter,
	Sniff:      Sniff,
}

// checksumKey separates bundle checksums from other BLAKE3 uses. It is the
// ASCII domain name zero-padded to 32 bytes.
var checksumKey = [32]byte{
	's', 'c', 'h', 'e', 'm', 'c', 't', 'l', '.', 'b', 'u', 'n', 'd', 'l', 'e', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

type envelope struct {
	Compression Compression `cbor:"compression"`
	Size        int         `cbor:"size"`
	Checksum    []byte      `cbor:"checksum"`
	Payload     []byte      `cbor:"payload"`
}

type payload struct {
	Region  geom.Region         `cbor:"region"`
	Origin  geom.Vector3        `cbor:"origin"`
	World   clipboard.WorldData `cbor:"world"`
	Palette []string            `cbor:"palette"`
	Blocks  []byte              `cbor:"blocks"`
}

// WithCompression returns the bundle descriptor with writers fixed to c.
func WithCompression(c Compression) format.Descriptor {
	d := Format
	d.Writer = func(w io.Writer) (format.ClipboardWriter, error) {
		return NewWriterWithCompression(w, c)
	}
	return d
}

func Sniff(header []byte) bool {
	return bytes.HasPrefix(header, []byte(Magic))
}

func checksum(data []byte) []byte {
	h, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("bundle: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(data)
	return h.Sum(nil)
}

type reader struct {
	r io.Reader
}

func NewReader(r io.Reader) (format.ClipboardReader, error) {
	return &reader{r: r}, nil
}

func (rd *reader) Read() (*clipboard.Clipboard, error) {
	head := make([]byte, len(Magic)+1)
	if _, err := io.ReadFull(rd.r, head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(head[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("bad magic %q", head[:len(Magic)])
	}
	if v := head[len(Magic)]; v != Version {
		return nil, fmt.Errorf("unsupported version %d", v)
	}

	var env envelope
	if err := codec.NewDecoder(rd.r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Size < 0 || env.Size > maxPayload {
		return nil, fmt.Errorf("payload size %d out of range", env.Size)
	}

	data, err := decompress(env.Payload, env.Compression, env.Size)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(checksum(data), env.Checksum) {
		return nil, ErrChecksum
	}

	var p payload
	if err := codec.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p.clipboard()
}

func (p *payload) clipboard() (*clipboard.Clipboard, error) {
	if p.Region.Min.X > p.Region.Max.X || p.Region.Min.Y > p.Region.Max.Y || p.Region.Min.Z > p.Region.Max.Z {
		return nil, fmt.Errorf("invalid region %s", p.Region)
	}
	palette := make([]clipboard.BlockState, len(p.Palette))
	for i, s := range p.Palette {
		state, err := clipboard.ParseBlockState(s)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}
		palette[i] = state
	}
	vol, err := clipboard.CheckRegion(p.Region)
	if err != nil {
		return nil, err
	}
	indices, err := blockdata.Unpack(p.Blocks, vol)
	if err != nil {
		return nil, err
	}
	return clipboard.FromPalette(p.Region, p.Origin, palette, indices)
}

type writer struct {
	w           io.Writer
	compression Compression
	written     bool
}

// NewWriter writes LZ4-compressed bundles.
func NewWriter(w io.Writer) (format.ClipboardWriter, error) {
	return NewWriterWithCompression(w, CompressionLZ4)
}

// NewWriterWithCompression writes bundles compressed with c. Payloads that do
// not shrink are stored uncompressed.
func NewWriterWithCompression(w io.Writer, c Compression) (format.ClipboardWriter, error) {
	if c.String() == "unknown" {
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
	return &writer{w: w, compression: c}, nil
}

func (wr *writer) Write(c *clipboard.Clipboard, world clipboard.WorldData) error {
	if wr.written {
		return errWritten
	}
	wr.written = true

	palette, indices := c.PaletteData()
	names := make([]string, len(palette))
	for i, state := range palette {
		names[i] = state.String()
	}
	data, err := codec.Marshal(payload{
		Region:  c.Region(),
		Origin:  c.Origin(),
		World:   world,
		Palette: names,
		Blocks:  blockdata.Pack(indices),
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	env, err := seal(data, wr.compression)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(wr.w, Magic); err != nil {
		return err
	}
	if _, err := wr.w.Write([]byte{Version}); err != nil {
		return err
	}
	return codec.NewEncoder(wr.w).Encode(env)
}

// seal compresses data with c, falling back to storing it when c does not
// shrink it, and records the checksum of the uncompressed bytes.
func seal(data []byte, c Compression) (envelope, error) {
	compressed, err := compress(data, c)
	if errors.Is(err, errIncompressible) {
		c, compressed, err = CompressionNone, data, nil
	}
	if err != nil {
		return envelope{}, err
	}
	return envelope{
		Compression: c,
		Size:        len(data),
		Checksum:    checksum(data),
		Payload:     compressed,
	}, nil
}

func (wr *writer) Close() error { return nil }

// Compression selects how the payload is packed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression accepts the names returned by String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4", "":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (expected none, lz4 or zstd)", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bundle: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		panic("bundle: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for incompressible input
		if n == 0 || n >= len(data) {
			return nil, errIncompressible
		}
		return dst[:n], nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, errIncompressible
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

func decompress(data []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("stored payload is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		if size > len(data)*lz4MaxRatio {
			return nil, fmt.Errorf("lz4 decompress: %d bytes cannot expand to %d", len(data), size)
		}
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}
