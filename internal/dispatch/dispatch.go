// Package dispatch decodes request messages, routes them to the Viewport
// Translator and Slicer, and encodes response messages. It knows nothing
// about the transport that carries those messages — see
// internal/transport for the websocket glue.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tkim90/billion-row-table/internal/slicer"
	"github.com/tkim90/billion-row-table/internal/viewport"
)

// envelope is the minimal shape every inbound message must carry so the
// Dispatcher can route it before fully decoding.
type envelope struct {
	Kind string `json:"kind"`
}

type metadataRequest struct {
	Kind string `json:"kind"`
}

type metadataResponse struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
	MaxRows   int    `json:"maxRows"`
	MaxCols   int    `json:"maxCols"`
}

type sliceRequest struct {
	Kind               string `json:"kind"`
	ScreenWidth        int    `json:"screenWidth"`
	ScreenHeight       int    `json:"screenHeight"`
	HorizontalBuffer   int    `json:"horizontalBuffer"`
	VerticalBuffer     int    `json:"verticalBuffer"`
	DefaultColumnWidth int    `json:"defaultColumnWidth"`
	DefaultRowHeight   int    `json:"defaultRowHeight"`
	ScrollLeft         int    `json:"scrollLeft"`
	ScrollTop          int    `json:"scrollTop"`
}

type sliceResponse struct {
	Kind       string     `json:"kind"`
	RequestID  string     `json:"requestId,omitempty"`
	StartRow   int        `json:"startRow"`
	RowCount   int        `json:"rowCount"`
	StartCol   int        `json:"startCol"`
	ColCount   int        `json:"colCount"`
	ColLetters []string   `json:"colLetters"`
	CellsByRow [][]string `json:"cellsByRow"`
}

type errorResponse struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
}

// TableSource is the slicer.Slicer surface the Dispatcher depends on.
type TableSource interface {
	TotalRows() int
	NumCols() int
	GetSlice(startRow, rowCount, startCol, colCount int) (*slicer.Response, error)
}

// Dispatcher routes decoded requests to a TableSource. It holds no
// per-connection state and is safe for concurrent use.
type Dispatcher struct {
	Table TableSource
}

// New constructs a Dispatcher serving the given table source.
func New(table TableSource) *Dispatcher {
	return &Dispatcher{Table: table}
}

// Handle decodes a single JSON request message and returns the JSON bytes
// of its response. It never panics and never returns an error for a
// malformed or unknown request — those become an `error` response
// message instead, per spec.md §4.5 and §7.
func (d *Dispatcher) Handle(raw []byte) []byte {
	reqID := uuid.NewString()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return d.errorf(reqID, "malformed request: %v", err)
	}

	switch env.Kind {
	case "metadata_request":
		return d.handleMetadata(reqID)
	case "slice_request":
		return d.handleSlice(reqID, raw)
	default:
		return d.errorf(reqID, "unknown request kind %q", env.Kind)
	}
}

func (d *Dispatcher) handleMetadata(reqID string) []byte {
	resp := metadataResponse{
		Kind:      "metadata_response",
		RequestID: reqID,
		MaxRows:   d.Table.TotalRows(),
		MaxCols:   d.Table.NumCols(),
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return d.errorf(reqID, "encode metadata_response: %v", err)
	}
	return b
}

func (d *Dispatcher) handleSlice(reqID string, raw []byte) []byte {
	var req sliceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return d.errorf(reqID, "malformed slice_request: %v", err)
	}

	params := viewport.Compute(viewport.Params{
		ScreenWidth:        req.ScreenWidth,
		ScreenHeight:       req.ScreenHeight,
		DefaultColumnWidth: req.DefaultColumnWidth,
		DefaultRowHeight:   req.DefaultRowHeight,
		ScrollLeft:         req.ScrollLeft,
		ScrollTop:          req.ScrollTop,
		HorizontalBuffer:   req.HorizontalBuffer,
		VerticalBuffer:     req.VerticalBuffer,
		MaxRows:            d.Table.TotalRows(),
		MaxCols:            d.Table.NumCols(),
	})

	slice, err := d.Table.GetSlice(params.StartRow, params.RowCount, params.StartCol, params.ColCount)
	if err != nil {
		return d.errorf(reqID, "slice: %v", err)
	}

	cells := make([][]string, len(slice.CellsByRow))
	for i, row := range slice.CellsByRow {
		cells[i] = row
	}

	resp := sliceResponse{
		Kind:       "slice_response",
		RequestID:  reqID,
		StartRow:   slice.StartRow,
		RowCount:   slice.RowCount,
		StartCol:   slice.StartCol,
		ColCount:   slice.ColCount,
		ColLetters: slice.ColLetters,
		CellsByRow: cells,
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return d.errorf(reqID, "encode slice_response: %v", err)
	}
	return b
}

func (d *Dispatcher) errorf(reqID, format string, args ...any) []byte {
	resp := errorResponse{Kind: "error", RequestID: reqID, Message: fmt.Sprintf(format, args...)}
	b, err := json.Marshal(resp)
	if err != nil {
		// Last resort: a hand-built message that cannot itself fail to
		// marshal, so a client always gets *some* well-formed error.
		return []byte(`{"kind":"error","message":"internal error encoding error response"}`)
	}
	return b
}
