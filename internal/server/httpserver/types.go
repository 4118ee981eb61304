package httpserver

import (
	"time"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// Response is the JSON envelope of every status endpoint except /metrics.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// SnapshotSummary describes a committed snapshot without its memory.
type SnapshotSummary struct {
	ID         string         `json:"id"`
	Cycle      uint64         `json:"cycle"`
	TakenAt    time.Time      `json:"taken_at"`
	Mode       domain.Mode    `json:"mode"`
	Sessions   map[string]int `json:"sessions,omitempty"`
	CapMapSize int            `json:"capmap_size"`
	Copies     int            `json:"copies"`
}

// Summarize builds the summary of s.
func Summarize(s *domain.Snapshot) SnapshotSummary {
	sum := SnapshotSummary{
		ID:         s.ID,
		Cycle:      s.Cycle,
		TakenAt:    s.TakenAt,
		Mode:       s.Mode,
		CapMapSize: len(s.CapMap),
		Copies:     len(s.Copies()),
	}
	if s.State != nil {
		sum.Sessions = make(map[string]int, len(domain.Kinds))
		for _, k := range domain.Kinds {
			sum.Sessions[k.String()] = s.State.Count(k)
		}
	}
	return sum
}
