// Package session pairs the two captures of an ID card (front and back).
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// Side selects which face of the card a capture belongs to.
type Side int

const (
	Front Side = iota
	Back
)

func (s Side) String() string {
	if s == Back {
		return "back"
	}
	return "front"
}

// ParseSide maps "front"/"back" to a Side.
func ParseSide(v string) (Side, error) {
	switch v {
	case "front":
		return Front, nil
	case "back":
		return Back, nil
	default:
		return Front, fmt.Errorf("unknown card side %q", v)
	}
}

// Image is one accepted capture.
type Image struct {
	CaptureID  uuid.UUID
	Cycle      uint64
	Data       []byte
	Region     geometry.CropRegion
	CapturedAt time.Time
}

// Summary is a point-in-time view of a session (no image bytes).
type Summary struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	HasFront  bool      `json:"has_front"`
	HasBack   bool      `json:"has_back"`
	Complete  bool      `json:"complete"`
	Replaced  int       `json:"replaced"`
	StartedAt time.Time `json:"started_at"`
}

// Session collects front and back images of one card.
//
// Accept fills the targeted side; re-capturing a side replaces it. After a
// side is filled the target advances to the other side if that one is still
// empty, so a plain front-then-back flow needs no explicit targeting.
//
// Safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	id       uuid.UUID
	target   Side
	sides    [2]*Image
	replaced int
	started  time.Time
}

// New starts an empty session targeting the front.
func New() *Session {
	return &Session{id: uuid.New(), started: time.Now()}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Target returns the side the next capture fills.
func (s *Session) Target() Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SetTarget selects the side the next capture fills (re-capture).
func (s *Session) SetTarget(side Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = side
}

// Accepted describes where Accept stored a capture. All fields come from
// the same locked snapshot, so a concurrent Reset can not mix sessions.
type Accepted struct {
	SessionID uuid.UUID
	Side      Side
	Replaced  bool
	Complete  bool
}

// Accept stores r on the targeted side of the current session.
func (s *Session) Accept(r pipeline.CaptureResult) Accepted {
	s.mu.Lock()
	defer s.mu.Unlock()

	side := s.target
	replaced := s.sides[side] != nil
	if replaced {
		s.replaced++
	}
	s.sides[side] = &Image{
		CaptureID:  r.ID,
		Cycle:      r.Cycle,
		Data:       r.Image,
		Region:     r.Region,
		CapturedAt: r.CapturedAt,
	}

	other := 1 - side
	if s.sides[other] == nil {
		s.target = other
	}
	return Accepted{
		SessionID: s.id,
		Side:      side,
		Replaced:  replaced,
		Complete:  s.sides[Front] != nil && s.sides[Back] != nil,
	}
}

// Image returns the image stored for side.
func (s *Session) Image(side Side) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sides[side] == nil {
		return Image{}, false
	}
	return *s.sides[side], true
}

// Complete reports whether both sides are present.
func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sides[Front] != nil && s.sides[Back] != nil
}

// Reset discards both images and starts a new session ID.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.New()
	s.target = Front
	s.sides = [2]*Image{}
	s.replaced = 0
	s.started = time.Now()
}

// Summary returns a snapshot for status endpoints.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:        s.id.String(),
		Target:    s.target.String(),
		HasFront:  s.sides[Front] != nil,
		HasBack:   s.sides[Back] != nil,
		Complete:  s.sides[Front] != nil && s.sides[Back] != nil,
		Replaced:  s.replaced,
		StartedAt: s.started,
	}
}
