package dist

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// cborEncMode uses canonical mode so that equal chunks encode to equal
// bytes.
var cborEncMode cbor.EncMode

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	if encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression)); err != nil {
		panic(fmt.Sprintf("dist: failed to create zstd encoder: %v", err))
	}
	if decoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("dist: failed to create zstd decoder: %v", err))
	}
}

// MarshalChunk serializes a Chunk: the magic header followed by the
// zstd-compressed CBOR encoding.
func MarshalChunk(c *Chunk) ([]byte, error) {
	if c.Routine == nil {
		return nil, errors.New("dist: chunk has no routine")
	}
	raw, err := cborEncMode.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "dist: marshal chunk")
	}
	out := append([]byte(nil), Magic[:]...)
	return encoder.EncodeAll(raw, out), nil
}

// UnmarshalChunk deserializes a Chunk written by MarshalChunk.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	if len(data) < len(Magic) || !bytes.HasPrefix(data, Magic[:3]) {
		return nil, errors.New("dist: not a phon chunk")
	}
	if data[3] != Version {
		return nil, fmt.Errorf("dist: unsupported chunk version %d", data[3])
	}
	raw, err := decoder.DecodeAll(data[len(Magic):], nil)
	if err != nil {
		return nil, errors.Wrap(err, "dist: decompress chunk")
	}
	var c Chunk
	if err := cbor.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "dist: unmarshal chunk")
	}
	if c.Routine == nil {
		return nil, errors.New("dist: chunk has no routine")
	}
	return &c, nil
}

// MarshalManifest serializes a capability Manifest to CBOR bytes.
func MarshalManifest(m *Manifest) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalManifest deserializes a capability Manifest from CBOR bytes.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "dist: unmarshal manifest")
	}
	return &m, nil
}

// WriteFile encodes c into path.
func WriteFile(path string, c *Chunk) error {
	data, err := MarshalChunk(c)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "dist: write %s", path)
}

// ReadFile decodes the chunk stored in path.
func ReadFile(path string) (*Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dist: read %s", path)
	}
	c, err := UnmarshalChunk(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// VerifyChunk checks that c was built from source.
func VerifyChunk(c *Chunk, source string) error {
	if got := HashSource(source); got != c.SourceHash {
		return fmt.Errorf("dist: chunk %q is stale: source hash %016x, chunk built from %016x", c.Name, got, c.SourceHash)
	}
	return nil
}
