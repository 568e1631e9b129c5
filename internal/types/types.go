package types

import "time"

// Session is one accepted connection and the transfers it carries.
type Session struct {
	ID       string
	Peer     string
	Expected uint32 // transfer count N declared by the peer
	Ordinal  int    // 1-based position of the transfer currently being served
	Started  time.Time
}

// Transfer is a single named file inside a session.
type Transfer struct {
	Name    string
	Payload []byte
}

// Box is a detection rectangle in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Outcome describes how a transfer ended, as recorded in the audit log.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed" // annotated image returned
	OutcomeDegraded  Outcome = "degraded"  // detection failed, placeholder returned
	OutcomeFailed    Outcome = "failed"    // session aborted with an ERRO frame
)

// TransferRecord is the audit view of a finished transfer.
type TransferRecord struct {
	SessionID   string
	Peer        string
	Ordinal     int
	FileName    string
	Digest      string // sha256 of the received payload
	PayloadSize int64
	ResultSize  int64
	FaceCount   int
	Outcome     Outcome
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}
