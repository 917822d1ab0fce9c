// Package slicer provides random-access reads over a large LT/FS-delimited
// file, guided by a sparse rowindex.Index, yielding exactly the requested
// row/column window even across short reads and variable-length rows.
package slicer

import (
	"fmt"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/tkim90/billion-row-table/internal/rowindex"
)

const (
	// readBufferSize is the minimum chunk the Slicer reads per request,
	// per spec.md §4.3.
	readBufferSize = 32 * 1024

	// avgRecordBytes and retryRecordBytes are tuning parameters encoding
	// an expected average record length; not contracts.
	avgRecordBytes   = 30
	retryRecordBytes = 50

	// maxChunkCacheBytes bounds the anchor-chunk cache's memory footprint.
	maxChunkCacheBytes = 64 * 1024 * 1024
)

// Row is a single parsed, column-projected record.
type Row = []string

// Response is the shape handed back to a dispatcher for a slice_response.
type Response struct {
	StartRow   int
	RowCount   int
	StartCol   int
	ColCount   int
	ColLetters []string
	CellsByRow []Row
}

// Slicer holds a read-only file handle and a shared reference to its
// index. Safe for concurrent use on disjoint or overlapping ranges: reads
// are positional (ReadAt), and the only mutable state is the chunk cache,
// which is mutex-guarded.
type Slicer struct {
	file     *os.File
	idx      *rowindex.Index
	nCols    int
	fieldSep byte

	cache      chunkCache
	fetchGroup singleflight.Group
}

// New opens dataPath read-only and wraps it with idx for slicing.
// fieldSep is the single-byte field separator (0x3B in the reference).
// nCols is the configured column count for the table.
func New(dataPath string, idx *rowindex.Index, nCols int, fieldSep byte) (*Slicer, error) {
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("slicer: open %s: %w", dataPath, err)
	}
	return &Slicer{
		file:     f,
		idx:      idx,
		nCols:    nCols,
		fieldSep: fieldSep,
		cache:    newChunkCache(maxChunkCacheBytes),
	}, nil
}

// Close releases the underlying file handle.
func (s *Slicer) Close() error { return s.file.Close() }

// TotalRows returns the indexed row count.
func (s *Slicer) TotalRows() int { return int(s.idx.TotalRows) }

// NumCols returns the configured column count.
func (s *Slicer) NumCols() int { return s.nCols }

// GetSlice returns exactly the requested rows/columns, clamped to valid
// bounds per spec.md §4.3. The response's RowCount is the number of rows
// actually returned, which may be less than requested only near EOF.
func (s *Slicer) GetSlice(startRow, rowCount, startCol, colCount int) (*Response, error) {
	totalRows := s.TotalRows()

	startRow = clamp(startRow, 0, max(totalRows-1, 0))
	if totalRows > 0 {
		rowCount = min(rowCount, totalRows-startRow)
	} else {
		rowCount = 0
	}
	startCol = clamp(startCol, 0, max(s.nCols-1, 0))
	colCount = min(colCount, s.nCols-startCol)
	if colCount < 0 {
		colCount = 0
	}

	letters := make([]string, colCount)
	for i := 0; i < colCount; i++ {
		letters[i] = ColumnIndexToLetters(startCol + i)
	}

	if rowCount <= 0 || totalRows == 0 {
		return &Response{StartRow: startRow, RowCount: 0, StartCol: startCol, ColCount: colCount, ColLetters: letters, CellsByRow: []Row{}}, nil
	}

	anchorIdx, skipU := s.idx.AnchorFor(uint64(startRow))
	anchor := int64(s.idx.Offsets[anchorIdx])
	skip := int(skipU)

	fileSize, err := s.fileSize()
	if err != nil {
		return nil, err
	}
	available := fileSize - anchor
	if available < 0 {
		available = 0
	}

	length := int64(readBufferSize)
	if want := int64(avgRecordBytes) * int64(skip+rowCount); want > length {
		length = want
	}
	if length > available {
		length = available
	}

	chunk, err := s.readChunk(anchor, length)
	if err != nil {
		return nil, err
	}

	rows, yielded := parseRows(chunk, skip, rowCount, length == available)

	// Under-read retry: while we come up short and more rows exist beyond
	// what we've read, grow the buffer and re-parse from the anchor, until
	// rowCount rows are parsed or the read reaches the end of the file.
	for yielded < rowCount && startRow+yielded < totalRows && length < available {
		length = min64(length+int64(retryRecordBytes)*int64(rowCount-yielded), available)
		chunk, err = s.readChunk(anchor, length)
		if err != nil {
			return nil, err
		}
		rows, yielded = parseRows(chunk, skip, rowCount, length == available)
	}

	cells := make([]Row, len(rows))
	for i, rec := range rows {
		cells[i] = projectColumns(rec, s.fieldSep, startCol, colCount)
	}

	return &Response{
		StartRow:   startRow,
		RowCount:   len(cells),
		StartCol:   startCol,
		ColCount:   colCount,
		ColLetters: letters,
		CellsByRow: cells,
	}, nil
}

func (s *Slicer) fileSize() (int64, error) {
	st, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("slicer: stat: %w", err)
	}
	return st.Size(), nil
}

// readChunk returns length bytes starting at anchor, served from the
// anchor-chunk cache when possible and deduplicated across concurrent
// callers requesting the same (anchor, length) via singleflight — the
// same shape as the teacher's rawfs.go chunkCache + fetchGroup.
func (s *Slicer) readChunk(anchor, length int64) ([]byte, error) {
	if data, ok := s.cache.get(anchor, length); ok {
		return data, nil
	}

	key := fmt.Sprintf("%d:%d", anchor, length)
	v, err, _ := s.fetchGroup.Do(key, func() (any, error) {
		buf := make([]byte, length)
		n, err := s.file.ReadAt(buf, anchor)
		if n > 0 {
			buf = buf[:n]
		}
		if err != nil && n == 0 {
			return nil, fmt.Errorf("slicer: read at %d: %w", anchor, err)
		}
		s.cache.set(anchor, length, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
