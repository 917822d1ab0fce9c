package rowindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// magic identifies the versioned on-disk format. Files written before this
// prefix existed (or by any implementation following spec.md's reference
// layout literally) have no magic at all: Load falls back to the legacy
// headerless form automatically.
var magic = [8]byte{'R', 'R', 'I', 'D', 'X', '0', '0', '1'}

// Save persists idx to path in the versioned binary format:
//
//	[0:8]    magic "RRIDX001"
//	[8:16]   totalRows  (u64 LE)
//	[16:24]  granularity (u64 LE)
//	[24:...] offsets[0..E) (u64 LE each)
func Save(path string, idx *Index) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("rowindex: create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(magic[:]); err != nil {
		f.Close()
		return err
	}
	if err := writeU64(w, idx.TotalRows); err != nil {
		f.Close()
		return err
	}
	if err := writeU64(w, idx.Granularity); err != nil {
		f.Close()
		return err
	}
	for _, off := range idx.Offsets {
		if err := writeU64(w, off); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// Load reads an index from path. It returns (nil, nil) if the file is
// absent. Malformed files (truncated header, offsets length not a multiple
// of 8 bytes) fail loudly, per spec.md's Load contract.
func Load(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rowindex: read %s: %w", path, err)
	}

	body := b
	if len(body) >= 8 && string(body[:8]) == string(magic[:]) {
		body = body[8:]
	}
	// Otherwise: no magic present, tolerate as the legacy headerless form.

	if len(body) < 16 {
		return nil, fmt.Errorf("rowindex: %s: truncated header (%d bytes)", path, len(body))
	}
	totalRows := binary.LittleEndian.Uint64(body[0:8])
	granularity := binary.LittleEndian.Uint64(body[8:16])

	rest := body[16:]
	if len(rest)%8 != 0 {
		return nil, fmt.Errorf("rowindex: %s: offsets section length %d not a multiple of 8", path, len(rest))
	}
	n := len(rest) / 8
	offsets := make([]uint64, n)
	for i := 0; i < n; i++ {
		offsets[i] = binary.LittleEndian.Uint64(rest[i*8 : i*8+8])
	}

	return &Index{TotalRows: totalRows, Granularity: granularity, Offsets: offsets}, nil
}

// IsFresh reports whether idx is acceptable for a data file of the given
// size, per the weak size-ratio heuristic: bounds assume a minimum record
// length of 5 bytes and a maximum of 50 bytes. This cannot detect content
// changes that preserve approximate row count (spec.md §9 open question 3);
// internal/health supplements it with an audit trail, not a stronger check.
func IsFresh(idx *Index, fileSize int64) bool {
	if fileSize <= 0 {
		return idx.TotalRows == 0
	}
	lo := uint64(fileSize) / 50
	hi := (uint64(fileSize) + 4) / 5 // ceil(fileSize/5)
	return lo <= idx.TotalRows && idx.TotalRows <= hi
}
