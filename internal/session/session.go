package session

import (
	"errors"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/portal"
)

// PageSize is how many entries are shown per page.
const PageSize = 12

var (
	ErrEmpty             = errors.New("session: no entries")
	ErrClosed            = errors.New("session: closed")
	ErrNoNextPage        = errors.New("session: already on the last page")
	ErrNoPrevPage        = errors.New("session: already on the first page")
	ErrUnknownIdentifier = errors.New("session: unknown identifier")
)

// Item is one selectable entry of a rendered page.
type Item struct {
	ID    string
	Title string
}

// Page is a rendered view of the session.
type Page struct {
	// Index is zero-based.
	Index int
	// Count is the total number of pages.
	Count int
	// Total is the total number of entries.
	Total   int
	Items   []Item
	HasPrev bool
	HasNext bool
}

// Session holds the results of one query for one conversation along with
// a cursor into its paged presentation.
//
// Identifiers are minted on every render and are only ever added to, an
// identifier from an earlier render keeps resolving until the session is closed.
type Session struct {
	entries []portal.Entry
	ids     map[string]portal.Entry
	page    int
	closed  bool
	rand    RandomAPI
}

func New(entries []portal.Entry, rand RandomAPI) (*Session, error) {
	assert.NotNil(rand, "rand")
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	owned := make([]portal.Entry, len(entries))
	copy(owned, entries)

	return &Session{
		entries: owned,
		ids:     map[string]portal.Entry{},
		rand:    rand,
	}, nil
}

// PageCount returns ceil(len(entries) / PageSize).
func (s *Session) PageCount() int {
	return (len(s.entries) + PageSize - 1) / PageSize
}

// CurrentPage returns the zero-based index of the current page.
func (s *Session) CurrentPage() int {
	return s.page
}

func (s *Session) hasNext() bool {
	return (s.page+1)*PageSize < len(s.entries)
}

// Render renders the current page, minting a fresh identifier for every
// entry on it.
func (s *Session) Render() (Page, error) {
	if s.closed {
		return Page{}, ErrClosed
	}

	start := s.page * PageSize
	end := min(start+PageSize, len(s.entries))

	items := make([]Item, 0, end-start)
	for _, entry := range s.entries[start:end] {
		id, err := s.mintIdentifier()
		if err != nil {
			return Page{}, err
		}
		s.ids[id] = entry
		items = append(items, Item{ID: id, Title: entry.Title})
	}

	return Page{
		Index:   s.page,
		Count:   s.PageCount(),
		Total:   len(s.entries),
		Items:   items,
		HasPrev: s.page > 0,
		HasNext: s.hasNext(),
	}, nil
}

func (s *Session) mintIdentifier() (string, error) {
	for {
		id, err := s.rand.GenerateToken()
		if err != nil {
			return "", fmt.Errorf("session: generate identifier: %w", err)
		}
		if _, taken := s.ids[id]; !taken {
			return id, nil
		}
	}
}

// Next moves to the next page and renders it.
func (s *Session) Next() (Page, error) {
	if s.closed {
		return Page{}, ErrClosed
	}
	if !s.hasNext() {
		return Page{}, ErrNoNextPage
	}
	s.page++
	return s.Render()
}

// Prev moves to the previous page and renders it.
func (s *Session) Prev() (Page, error) {
	if s.closed {
		return Page{}, ErrClosed
	}
	if s.page == 0 {
		return Page{}, ErrNoPrevPage
	}
	s.page--
	return s.Render()
}

// Select resolves an identifier handed out by a render.
func (s *Session) Select(id string) (portal.Entry, error) {
	if s.closed {
		return portal.Entry{}, ErrClosed
	}
	entry, ok := s.ids[id]
	if !ok {
		return portal.Entry{}, ErrUnknownIdentifier
	}
	return entry, nil
}

// All returns every entry of the session in discovery order.
func (s *Session) All() ([]portal.Entry, error) {
	if s.closed {
		return nil, ErrClosed
	}
	all := make([]portal.Entry, len(s.entries))
	copy(all, s.entries)
	return all, nil
}

// Close invalidates the session and every identifier it handed out.
func (s *Session) Close() {
	s.closed = true
	s.ids = nil
	s.entries = nil
}
