package stub

import (
	"sync"
	"time"
)

type user struct {
	StandardCredits int
	HDCredits       int
	SubType         string
	SubExpires      *time.Time
}

type enhancement struct {
	ID             string
	UserID         string
	Mode           string
	Resolution     string
	ImageKey       string
	ProcessingTime float64
	Watermark      bool
	CreatedAt      time.Time
}

type linkedDevice struct {
	ID       string
	Name     string
	Type     string
	DeviceID string
	LinkedAt time.Time
}

// store is the stub's whole world: in-memory, lost on restart, which is
// exactly right for a development backend.
type store struct {
	mu           sync.Mutex
	users        map[string]*user
	enhancements map[string][]enhancement
	images       map[string][]byte
	links        map[string][]linkedDevice
	codes        map[string]string
}

func newStore() *store {
	return &store{
		users:        make(map[string]*user),
		enhancements: make(map[string][]enhancement),
		images:       make(map[string][]byte),
		links:        make(map[string][]linkedDevice),
		codes:        make(map[string]string),
	}
}

func (s *store) ensureUser(userID string, startingCredits int) *user {
	u, ok := s.users[userID]
	if !ok {
		u = &user{StandardCredits: startingCredits, HDCredits: startingCredits}
		s.users[userID] = u
	}
	return u
}
