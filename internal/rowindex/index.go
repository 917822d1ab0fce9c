// Package rowindex builds and serves the sparse row index: a compact
// mapping from every Gth row to the byte offset of its first byte,
// allowing O(1) seek to any row of a large LT-delimited file.
package rowindex

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// LT is the line terminator byte separating records.
	LT = '\n'

	// chunkSize is the read buffer used while scanning the data file.
	// Large chunks amortize I/O cost across the scan.
	chunkSize = 64 * 1024 * 1024
)

// Index is the immutable result of a single-pass scan: every offsets[k]
// is the byte offset of the first byte of record k*Granularity.
// offsets[0] is always 0. Safe for concurrent read-only use once built.
type Index struct {
	TotalRows   uint64
	Granularity uint64
	Offsets     []uint64
}

// Build scans filePath once and returns the sparse index for granularity G.
// Anchors point to the byte immediately after every Gth LT; offsets[0] is
// pre-seeded to 0. A short read is treated as EOF and the partial result
// is returned with an accurate TotalRows.
func Build(ctx context.Context, filePath string, granularity uint64) (*Index, error) {
	if granularity < 1 {
		return nil, fmt.Errorf("rowindex: granularity must be >= 1, got %d", granularity)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("rowindex: open %s: %w", filePath, err)
	}
	defer f.Close()

	start := time.Now()
	idx := &Index{
		Granularity: granularity,
		Offsets:     []uint64{0},
	}

	r := bufio.NewReaderSize(f, chunkSize)
	buf := make([]byte, chunkSize)
	var globalOffset uint64
	var sinceLast uint64

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rowindex: build canceled: %w", err)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				if buf[i] != LT {
					continue
				}
				idx.TotalRows++
				sinceLast++
				if sinceLast == granularity {
					idx.Offsets = append(idx.Offsets, globalOffset+uint64(i)+1)
					sinceLast = 0
				}
			}
			globalOffset += uint64(n)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("rowindex: read %s: %w", filePath, readErr)
		}
	}

	// An anchor landing exactly at the end of the file would point past
	// every row; spec.md requires offsets.length == ceil(totalRows/G), so
	// that final spurious entry is dropped. offsets[0]=0 is never dropped
	// this way since an empty file also has size 0.
	if len(idx.Offsets) > 1 && idx.Offsets[len(idx.Offsets)-1] == globalOffset {
		idx.Offsets = idx.Offsets[:len(idx.Offsets)-1]
	}

	size := int64(globalOffset)
	// A final record with no trailing LT is still a row: count it so it
	// remains reachable by the Slicer. lastByte is cheap to recover since
	// we already know the file's total size from the scan itself.
	if size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err == nil && last[0] != LT {
			idx.TotalRows++
		}
	}

	log.Printf("rowindex: built index file=%s size=%s rows=%d granularity=%d anchors=%d elapsed=%s",
		filePath, humanize.Bytes(uint64(size)), idx.TotalRows, granularity, len(idx.Offsets), time.Since(start))

	return idx, nil
}

// AnchorFor returns the anchor index k = floor(row/G) and the number of
// records to skip past offsets[k] to reach row.
func (idx *Index) AnchorFor(row uint64) (anchorIdx, skip uint64) {
	k := row / idx.Granularity
	return k, row - k*idx.Granularity
}
