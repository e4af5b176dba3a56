// Package formattest provides shared fixtures for format codec tests.
package formattest

import (
	"bytes"
	"testing"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/format"
	"schemctl/pkg/geom"
)

// World is the world context the fixtures are written with.
var World = clipboard.WorldData{DataVersion: 3700, Platform: "test"}

// Sample returns a 3x2x2 clipboard with oriented blocks and an origin that
// is not the region minimum.
func Sample(t testing.TB) *clipboard.Clipboard {
	t.Helper()
	c := clipboard.New(geom.NewRegion(geom.V(-1, 10, 4), geom.V(1, 11, 5)))
	c.SetOrigin(geom.V(0, 10, 4))
	blocks := map[geom.Vector3]string{
		geom.V(-1, 10, 4): "minecraft:stone",
		geom.V(0, 10, 4):  "minecraft:oak_stairs[facing=east,half=top]",
		geom.V(1, 11, 5):  "minecraft:oak_log[axis=z]",
		geom.V(1, 10, 5):  "minecraft:stone",
	}
	for pos, s := range blocks {
		if err := c.SetBlock(pos, clipboard.MustParseBlockState(s)); err != nil {
			t.Fatalf("SetBlock(%v): %v", pos, err)
		}
	}
	return c
}

// Encode writes c with d and returns the bytes.
func Encode(t testing.TB, d format.Descriptor, c *clipboard.Clipboard) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := d.Writer(&buf)
	if err != nil {
		t.Fatalf("%s: Writer() error = %v", d.Name, err)
	}
	if err := w.Write(c, World); err != nil {
		t.Fatalf("%s: Write() error = %v", d.Name, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("%s: Close() error = %v", d.Name, err)
	}
	return buf.Bytes()
}

// Decode reads one clipboard from data with d.
func Decode(d format.Descriptor, data []byte) (*clipboard.Clipboard, error) {
	r, err := d.Reader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return r.Read()
}

// RoundTrip encodes the sample, checks the sniffer recognises the output,
// decodes it again and compares.
func RoundTrip(t *testing.T, d format.Descriptor) {
	t.Helper()
	want := Sample(t)
	data := Encode(t, d, want)

	if d.Sniff != nil && !d.Sniff(head(data)) {
		t.Errorf("%s: Sniff() rejected its own output", d.Name)
	}

	got, err := Decode(d, data)
	if err != nil {
		t.Fatalf("%s: Read() error = %v", d.Name, err)
	}
	if !want.Equal(got) {
		t.Errorf("%s: round trip differs: %s", d.Name, want.Diff(got))
	}
}

// Truncated checks that every strict prefix of an encoded sample fails to
// decode instead of producing a clipboard.
func Truncated(t *testing.T, d format.Descriptor) {
	t.Helper()
	data := Encode(t, d, Sample(t))
	for _, n := range []int{0, 1, len(data) / 2, len(data) - 1} {
		if _, err := Decode(d, data[:n]); err == nil {
			t.Errorf("%s: decoding %d of %d bytes succeeded", d.Name, n, len(data))
		}
	}
}

func head(data []byte) []byte {
	if len(data) > format.SniffLength {
		return data[:format.SniffLength]
	}
	return data
}
