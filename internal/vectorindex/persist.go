package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/google/uuid"
)

// MagicBytes identifies a vector file ("RAGV").
const (
	MagicBytes    uint32 = 0x52414756
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
)

// Header is the fixed 64-byte prefix of a vector file.
type Header struct {
	Magic     uint32
	Version   uint32
	Count     uint32
	Dimension uint32
	CreatedAt int64
	BuildID   uuid.UUID
	Checksum  uint32
}

// Mapping is the JSON companion of a vector file.
type Mapping struct {
	BuildID string   `json:"build_id"`
	Count   int      `json:"count"`
	Paths   []string `json:"paths"`
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.Count)
	binary.LittleEndian.PutUint32(b[12:16], h.Dimension)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	copy(b[24:40], h.BuildID[:])
	binary.LittleEndian.PutUint32(b[40:44], h.Checksum)
	return b
}

func unmarshalHeader(b []byte) Header {
	var h Header
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	h.Version = binary.LittleEndian.Uint32(b[4:8])
	h.Count = binary.LittleEndian.Uint32(b[8:12])
	h.Dimension = binary.LittleEndian.Uint32(b[12:16])
	h.CreatedAt = int64(binary.LittleEndian.Uint64(b[16:24]))
	copy(h.BuildID[:], b[24:40])
	h.Checksum = binary.LittleEndian.Uint32(b[40:44])
	return h
}

// Save writes the vector file and its mapping. Each file is written to a
// .tmp sibling, synced, then renamed over the target.
func Save(idx *Index, vectorPath, mappingPath string) error {
	payload := make([]byte, 4*len(idx.vectors))
	for i, x := range idx.vectors {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(x))
	}
	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Count:     uint32(idx.Len()),
		Dimension: uint32(idx.dim),
		CreatedAt: idx.createdAt.Unix(),
		BuildID:   idx.buildID,
		Checksum:  crc32.ChecksumIEEE(payload),
	}
	var vec bytes.Buffer
	vec.Grow(HeaderSize + len(payload))
	vec.Write(header.marshal())
	vec.Write(payload)

	paths := idx.paths
	if paths == nil {
		paths = []string{}
	}
	mapping, err := json.MarshalIndent(Mapping{
		BuildID: idx.BuildID(),
		Count:   idx.Len(),
		Paths:   paths,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}

	if err := writeAtomic(vectorPath, vec.Bytes()); err != nil {
		return fmt.Errorf("writing vector file: %w", err)
	}
	if err := writeAtomic(mappingPath, mapping); err != nil {
		return fmt.Errorf("writing mapping file: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Load reads a vector file and its mapping and verifies they belong to the
// same build. Every failure is a configuration error.
func Load(vectorPath, mappingPath string) (*Index, error) {
	raw, err := os.ReadFile(vectorPath)
	if err != nil {
		return nil, missingOrUnreadable("vector file", vectorPath, err)
	}
	mapRaw, err := os.ReadFile(mappingPath)
	if err != nil {
		return nil, missingOrUnreadable("mapping file", mappingPath, err)
	}

	if len(raw) < HeaderSize {
		return nil, corrupt("vector file %s is %d bytes, shorter than its header", vectorPath, len(raw))
	}
	header := unmarshalHeader(raw[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, corrupt("vector file %s: bad magic bytes %x", vectorPath, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, corrupt("vector file %s: unsupported format version %d", vectorPath, header.Version)
	}
	if header.Count > 0 && header.Dimension == 0 {
		return nil, corrupt("vector file %s: %d vectors of dimension 0", vectorPath, header.Count)
	}
	payload := raw[HeaderSize:]
	want := int(header.Count) * int(header.Dimension) * 4
	if len(payload) != want {
		return nil, corrupt("vector file %s: payload is %d bytes, header implies %d", vectorPath, len(payload), want)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != header.Checksum {
		return nil, corrupt("vector file %s: checksum %08x does not match header %08x", vectorPath, sum, header.Checksum)
	}

	var mapping Mapping
	if err := json.Unmarshal(mapRaw, &mapping); err != nil {
		return nil, corrupt("parsing mapping file %s: %v", mappingPath, err)
	}
	if mapping.BuildID != header.BuildID.String() {
		return nil, corrupt("mapping build %s does not match vector build %s", mapping.BuildID, header.BuildID)
	}
	if len(mapping.Paths) != int(header.Count) || mapping.Count != len(mapping.Paths) {
		return nil, corrupt("mapping has %d paths (count %d) but vector file has %d vectors",
			len(mapping.Paths), mapping.Count, header.Count)
	}

	vectors := make([]float32, int(header.Count)*int(header.Dimension))
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	dim := int(header.Dimension)
	for pos := 0; pos < int(header.Count); pos++ {
		if err := checkUnit(vectors[pos*dim : (pos+1)*dim]); err != nil {
			return nil, corrupt("vector file %s: vector %d (%s) %v", vectorPath, pos, mapping.Paths[pos], err)
		}
	}
	return &Index{
		dim:       dim,
		vectors:   vectors,
		paths:     mapping.Paths,
		buildID:   header.BuildID,
		createdAt: time.Unix(header.CreatedAt, 0).UTC(),
	}, nil
}

// unitTolerance bounds |norm²-1| for a stored vector. float32 rounding
// over a few thousand components stays well inside it.
const unitTolerance = 1e-3

func checkUnit(v []float32) error {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.New("has a non-finite component")
		}
		sum += f * f
	}
	if math.Abs(sum-1) > unitTolerance {
		return fmt.Errorf("has norm %.4f, want 1", math.Sqrt(sum))
	}
	return nil
}

func missingOrUnreadable(what, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s %s is missing", apperrors.ErrConfiguration, what, path)
	}
	return fmt.Errorf("%w: reading %s %s: %w", apperrors.ErrConfiguration, what, path, err)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", apperrors.ErrConfiguration, apperrors.ErrIndexCorrupt, fmt.Sprintf(format, args...))
}
