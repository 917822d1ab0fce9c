package slicer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/tkim90/billion-row-table/internal/rowindex"
)

// buildSlicer writes contents to a temp file, builds a rowindex over it
// at the given granularity, and returns a ready Slicer with 2 columns
// separated by ';'.
func buildSlicer(t *testing.T, contents string, granularity uint64) *Slicer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	idx, err := rowindex.Build(context.Background(), path, granularity)
	if err != nil {
		t.Fatalf("rowindex.Build: %v", err)
	}
	s, err := New(path, idx, 2, ';')
	if err != nil {
		t.Fatalf("slicer.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSliceBasicRange(t *testing.T) {
	contents := "Hamburg;12.0\nBulawayo;8.9\nOslo;-3.2\nCairo;27.1\nLima;19.4\n"
	s := buildSlicer(t, contents, 2)

	resp, err := s.GetSlice(1, 2, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.StartRow != 1 || resp.RowCount != 2 {
		t.Fatalf("StartRow/RowCount = %d/%d, want 1/2", resp.StartRow, resp.RowCount)
	}
	want := []Row{
		{"Bulawayo", "8.9"},
		{"Oslo", "-3.2"},
	}
	for i, row := range want {
		for j, cell := range row {
			if resp.CellsByRow[i][j] != cell {
				t.Errorf("CellsByRow[%d][%d] = %q, want %q", i, j, resp.CellsByRow[i][j], cell)
			}
		}
	}
}

func TestGetSliceClampsStartRowPastEnd(t *testing.T) {
	contents := "a;1\nb;2\nc;3\n"
	s := buildSlicer(t, contents, 1)

	resp, err := s.GetSlice(100, 5, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.StartRow != 2 {
		t.Fatalf("StartRow = %d, want 2 (clamped to last row)", resp.StartRow)
	}
	if resp.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", resp.RowCount)
	}
}

func TestGetSliceZeroRowFile(t *testing.T) {
	s := buildSlicer(t, "", 10)
	resp, err := s.GetSlice(0, 10, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.RowCount != 0 || len(resp.CellsByRow) != 0 {
		t.Fatalf("RowCount/len(CellsByRow) = %d/%d, want 0/0", resp.RowCount, len(resp.CellsByRow))
	}
}

func TestGetSliceSpansMultipleAnchors(t *testing.T) {
	contents := ""
	for i := 0; i < 20; i++ {
		contents += "row" + strconv.Itoa(i) + ";val" + strconv.Itoa(i) + "\n"
	}
	s := buildSlicer(t, contents, 3) // anchors every 3 rows

	resp, err := s.GetSlice(4, 10, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.RowCount != 10 {
		t.Fatalf("RowCount = %d, want 10", resp.RowCount)
	}
	if resp.CellsByRow[0][0] != "row4" {
		t.Fatalf("CellsByRow[0][0] = %q, want %q", resp.CellsByRow[0][0], "row4")
	}
	if resp.CellsByRow[9][0] != "row13" {
		t.Fatalf("CellsByRow[9][0] = %q, want %q", resp.CellsByRow[9][0], "row13")
	}
}

func TestGetSliceFinalRowWithoutTrailingLT(t *testing.T) {
	contents := "a;1\nb;2\nc;3" // no trailing LT
	s := buildSlicer(t, contents, 1)

	resp, err := s.GetSlice(2, 1, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", resp.RowCount)
	}
	if resp.CellsByRow[0][0] != "c" || resp.CellsByRow[0][1] != "3" {
		t.Fatalf("CellsByRow[0] = %v, want [c 3]", resp.CellsByRow[0])
	}
}

func TestGetSliceUnderReadRetryWithOversizedRecord(t *testing.T) {
	// A single record much larger than the initial readBufferSize/
	// avgRecordBytes estimate forces at least one retry.
	big := make([]byte, 100*1024)
	for i := range big {
		big[i] = 'x'
	}
	contents := "a;1\nb;" + string(big) + "\nc;3\n"
	s := buildSlicer(t, contents, 1)

	resp, err := s.GetSlice(1, 1, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", resp.RowCount)
	}
	if len(resp.CellsByRow[0][1]) != len(big) {
		t.Fatalf("cell length = %d, want %d", len(resp.CellsByRow[0][1]), len(big))
	}
}

func TestGetSliceMissingFieldSeparator(t *testing.T) {
	contents := "justonefield\nb;2\n"
	s := buildSlicer(t, contents, 1)

	resp, err := s.GetSlice(0, 1, 0, 2)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.CellsByRow[0][0] != "justonefield" || resp.CellsByRow[0][1] != "" {
		t.Fatalf("CellsByRow[0] = %v, want [justonefield \"\"]", resp.CellsByRow[0])
	}
}

func TestGetSliceColumnClamping(t *testing.T) {
	contents := "a;1\nb;2\n"
	s := buildSlicer(t, contents, 1)

	resp, err := s.GetSlice(0, 2, 1, 5)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if resp.ColCount != 1 {
		t.Fatalf("ColCount = %d, want 1 (clamped to remaining columns)", resp.ColCount)
	}
	if resp.ColLetters[0] != "B" {
		t.Fatalf("ColLetters[0] = %q, want %q", resp.ColLetters[0], "B")
	}
}

func TestColumnIndexToLettersBijection(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{18277, "ZZZ"},
		{18278, "AAAA"},
	}
	for _, c := range cases {
		if got := ColumnIndexToLetters(c.n); got != c.want {
			t.Errorf("ColumnIndexToLetters(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestColumnIndexToLettersLengthNeverShrinks(t *testing.T) {
	prevLen := 0
	for n := 0; n < 20000; n++ {
		s := ColumnIndexToLetters(n)
		if len(s) < prevLen {
			t.Fatalf("ColumnIndexToLetters(%d) = %q shrank from previous length %d", n, s, prevLen)
		}
		prevLen = len(s)
	}
}
