package slicer

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// parseRows walks chunk, discards the first skip records (delimited by
// LT), then yields up to rowCount further records as raw byte slices.
// It stops early if the chunk runs out before a terminating LT is found
// for the next wanted record — the caller interprets that as an
// under-read and retries with a larger chunk.
//
// Unlike spec.md's reference parser, empty lines (two consecutive LTs)
// are NOT silently skipped: they are yielded as a row whose columns are
// all empty strings, so totalRows (which counts every LT) and the rows
// actually servable by GetSlice never disagree — see SPEC_FULL.md's
// resolution of Open Question 2.
func parseRows(chunk []byte, skip, rowCount int, eof bool) (records [][]byte, yielded int) {
	pos := 0
	for i := 0; i < skip; i++ {
		nl := bytes.IndexByte(chunk[pos:], '\n')
		if nl < 0 {
			return records, yielded
		}
		pos += nl + 1
	}

	records = make([][]byte, 0, rowCount)
	for yielded < rowCount {
		if pos >= len(chunk) {
			break
		}
		nl := bytes.IndexByte(chunk[pos:], '\n')
		if nl < 0 {
			if eof {
				// The chunk runs all the way to the end of the file: the
				// remaining bytes are the final record, which may lack a
				// trailing LT. Still a row (see Open Question 1's
				// resolution in SPEC_FULL.md).
				records = append(records, chunk[pos:])
				yielded++
			}
			// Otherwise this is an under-read: the caller retries with a
			// larger chunk.
			break
		}
		records = append(records, chunk[pos:pos+nl])
		pos += nl + 1
		yielded++
	}
	return records, yielded
}

// projectColumns splits record on the first FS byte into two fields,
// selects [startCol, startCol+colCount), padding with empty strings if
// colCount exceeds the available field count. Cell bytes are decoded as
// UTF-8 (malformed sequences become U+FFFD) and normalized to NFC.
func projectColumns(record []byte, fieldSep byte, startCol, colCount int) []string {
	var fields [2]string
	if idx := bytes.IndexByte(record, fieldSep); idx >= 0 {
		fields[0] = decodeCell(record[:idx])
		fields[1] = decodeCell(record[idx+1:])
	} else {
		fields[0] = decodeCell(record)
		fields[1] = ""
	}

	out := make([]string, colCount)
	for i := 0; i < colCount; i++ {
		col := startCol + i
		if col < len(fields) {
			out[i] = fields[col]
		} else {
			out[i] = ""
		}
	}
	return out
}

// decodeCell converts raw bytes to a UTF-8 string, replacing malformed
// sequences with U+FFFD (decoding never fails the request), then
// normalizes to NFC so visually-identical cells compare equal regardless
// of combining-mark ordering in the source file.
func decodeCell(b []byte) string {
	if utf8.Valid(b) {
		return norm.NFC.String(string(b))
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return norm.NFC.String(sb.String())
}

// ColumnIndexToLetters produces spreadsheet-style column labels:
// 0->A, 1->B, ..., 25->Z, 26->AA, 27->AB, ... (base-26, "A=0, no zero
// digit" convention).
func ColumnIndexToLetters(n int) string {
	if n < 0 {
		return ""
	}
	var b []byte
	for n >= 0 {
		rem := n % 26
		b = append([]byte{byte('A' + rem)}, b...)
		n = n/26 - 1
	}
	return string(b)
}
