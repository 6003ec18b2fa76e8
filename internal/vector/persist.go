package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"akar-rag/internal/text"
)

const (
	VectorsFile  = "vectors.bin"
	MetadataFile = "metadata.json"
	// CurrentFile holds the id of the generation directory Load reads.
	CurrentFile = "CURRENT"

	formatVersion uint32 = 1
)

var vectorsMagic = [4]byte{'A', 'K', 'V', 'X'}

type metadata struct {
	Generation string       `json:"generation"`
	Dimension  int          `json:"dimension"`
	BuiltAt    time.Time    `json:"built_at"`
	Chunks     []text.Chunk `json:"chunks"`
}

type vectorsHeader struct {
	Magic      [4]byte
	Version    uint32
	Generation [16]byte
	Dimension  uint32
	Count      uint32
}

// Save writes the index into its own generation directory under dir and
// then points CURRENT at it. Until the pointer is renamed into place, Load
// keeps returning the previous generation. Generations older than the
// previous one are removed after the swap.
func (ix *Index) Save(dir string) error {
	gen, err := uuid.Parse(ix.generation)
	if err != nil {
		return fmt.Errorf("%w: generation %q: %w", ErrPersistence, ix.generation, err)
	}

	var vec bytes.Buffer
	hdr := vectorsHeader{
		Magic:      vectorsMagic,
		Version:    formatVersion,
		Generation: gen,
		Dimension:  uint32(ix.dimension),
		Count:      uint32(len(ix.vectors)),
	}
	if err := binary.Write(&vec, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	for _, v := range ix.vectors {
		if err := binary.Write(&vec, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}

	meta, err := json.Marshal(metadata{
		Generation: ix.generation,
		Dimension:  ix.dimension,
		BuiltAt:    ix.builtAt,
		Chunks:     ix.chunks,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	genDir := filepath.Join(dir, ix.generation)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := writeAtomic(genDir, VectorsFile, vec.Bytes()); err != nil {
		return err
	}
	if err := writeAtomic(genDir, MetadataFile, meta); err != nil {
		return err
	}
	if err := syncDir(genDir); err != nil {
		return err
	}

	previous, _ := readPointer(dir)
	if err := writeAtomic(dir, CurrentFile, []byte(ix.generation+"\n")); err != nil {
		return err
	}
	if err := syncDir(dir); err != nil {
		return err
	}

	prune(dir, ix.generation, previous)
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrPersistence, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersistence, name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrPersistence, name, err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrPersistence, dir, err)
	}
	return nil
}

// readPointer returns the generation named by CURRENT.
func readPointer(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, CurrentFile))
	if err != nil {
		return "", err
	}
	gen := strings.TrimSpace(string(b))
	if _, err := uuid.Parse(gen); err != nil {
		return "", fmt.Errorf("%w: %s names %q", ErrCorruptIndex, CurrentFile, gen)
	}
	return gen, nil
}

// prune removes generation directories other than keep. The directory a
// concurrent reader may still be opening is kept as well.
func prune(dir string, keep ...string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(keep, e.Name()) {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("failed to remove old index generation", "generation", e.Name(), "error", err)
		}
	}
}

// Load reads the generation CURRENT points at. A missing pointer or a
// missing artifact yields ErrIndexNotReady; anything unreadable or
// inconsistent yields ErrCorruptIndex.
func Load(dir string) (*Index, error) {
	gen, err := readPointer(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrIndexNotReady, CurrentFile)
		}
		if errors.Is(err, ErrCorruptIndex) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return loadGeneration(filepath.Join(dir, gen), gen)
}

func loadGeneration(dir, gen string) (*Index, error) {
	metaBytes, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing for generation %s", ErrIndexNotReady, MetadataFile, gen)
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	var meta metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptIndex, MetadataFile, err)
	}
	if meta.Generation != gen {
		return nil, fmt.Errorf("%w: %s names %s, metadata has %s", ErrCorruptIndex, CurrentFile, gen, meta.Generation)
	}

	f, err := os.Open(filepath.Join(dir, VectorsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing for generation %s", ErrIndexNotReady, VectorsFile, gen)
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr vectorsHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s header: %w", ErrCorruptIndex, VectorsFile, err)
	}
	if hdr.Magic != vectorsMagic || hdr.Version != formatVersion {
		return nil, fmt.Errorf("%w: %s: unknown format", ErrCorruptIndex, VectorsFile)
	}
	if vg := uuid.UUID(hdr.Generation).String(); vg != meta.Generation {
		return nil, fmt.Errorf("%w: generation mismatch (vectors %s, metadata %s)", ErrCorruptIndex, vg, meta.Generation)
	}
	if hdr.Dimension == 0 || int(hdr.Dimension) != meta.Dimension {
		return nil, fmt.Errorf("%w: dimension mismatch", ErrCorruptIndex)
	}
	if int(hdr.Count) != len(meta.Chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrCorruptIndex, hdr.Count, len(meta.Chunks))
	}
	if hdr.Count == 0 {
		return nil, fmt.Errorf("%w: empty index", ErrCorruptIndex)
	}
	for i, c := range meta.Chunks {
		if c.ID != i {
			return nil, fmt.Errorf("%w: chunk at position %d has id %d", ErrCorruptIndex, i, c.ID)
		}
	}

	vectors := make([][]float32, hdr.Count)
	for i := range vectors {
		v := make([]float32, hdr.Dimension)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: vector %d: %w", ErrCorruptIndex, i, err)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return nil, fmt.Errorf("%w: vector %d is not finite", ErrCorruptIndex, i)
			}
		}
		vectors[i] = v
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing bytes in %s", ErrCorruptIndex, VectorsFile)
	}

	return &Index{
		generation: meta.Generation,
		dimension:  meta.Dimension,
		builtAt:    meta.BuiltAt,
		vectors:    vectors,
		chunks:     meta.Chunks,
	}, nil
}
