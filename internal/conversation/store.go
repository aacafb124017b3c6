package conversation

import (
	"marksbot/internal/components/telemetry"
	"marksbot/internal/portal"
	"marksbot/internal/session"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type stage int

const (
	stageDepartment stage = iota
	stageYear
	stageSeason
	stageResults
	stageDone
)

// state is everything known about one chat, mutex serializes the handling
// of the chat's events.
type state struct {
	mutex   sync.Mutex
	stage   stage
	query   portal.Query
	session *session.Session
}

// reset discards the session and restarts the wizard.
func (s *state) reset() {
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	s.query = portal.Query{}
	s.stage = stageDepartment
}

type store struct {
	mutex sync.Mutex
	cache *expirable.LRU[int64, *state]
}

func newStore(size int, ttl time.Duration) *store {
	return &store{
		cache: expirable.NewLRU[int64, *state](size, nil, ttl),
	}
}

func (s *store) get(chatId int64) (*state, bool) {
	return s.cache.Get(chatId)
}

// replace maps a chat to a fresh state and returns it, locked, along with the
// state it replaced, if any.
func (s *store) replace(chatId int64) (created, previous *state) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, _ = s.cache.Peek(chatId)
	created = &state{}
	created.mutex.Lock()
	s.cache.Add(chatId, created)
	telemetry.ActiveConversations.Set(float64(s.cache.Len()))
	return created, previous
}

// touch restarts the expiry of a chat if it is still mapped to st.
func (s *store) touch(chatId int64, st *state) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cached, hit := s.cache.Peek(chatId)
	if hit && cached == st {
		s.cache.Add(chatId, st)
	}
}

// remove forgets a chat if it is still mapped to st.
func (s *store) remove(chatId int64, st *state) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cached, hit := s.cache.Peek(chatId)
	if hit && cached == st {
		s.cache.Remove(chatId)
	}
	telemetry.ActiveConversations.Set(float64(s.cache.Len()))
}

func (s *store) len() int {
	return s.cache.Len()
}
