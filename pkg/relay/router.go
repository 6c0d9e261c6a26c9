package relay

import (
	"sort"
	"strconv"
	"sync/atomic"
)

// Target is where a submission of one category is relayed.
type Target struct {
	ChatID  int64
	TopicID int64
	Label   string
}

// Router picks the staff destination for a submission category.
type Router interface {
	Route(category int) Target
	// IsStaffChat reports whether chatID is any staff destination.
	IsStaffChat(chatID int64) bool
}

// StaticRouter maps category numbers onto fixed targets. Zero and
// unmapped categories go to the default staff group.
type StaticRouter struct {
	Default    int64
	Categories map[int]Target
}

func (r StaticRouter) Route(category int) Target {
	if category != 0 {
		if t, ok := r.Categories[category]; ok && t.ChatID != 0 {
			return t
		}
	}
	return Target{ChatID: r.Default}
}

func (r StaticRouter) IsStaffChat(chatID int64) bool {
	if chatID == 0 {
		return false
	}
	if chatID == r.Default {
		return true
	}
	for _, t := range r.Categories {
		if t.ChatID == chatID {
			return true
		}
	}
	return false
}

// Labels returns the configured categories in numeric order.
func (r StaticRouter) Labels() []Category {
	out := make([]Category, 0, len(r.Categories))
	for n, t := range r.Categories {
		label := t.Label
		if label == "" {
			label = "Category " + strconv.Itoa(n)
		}
		out = append(out, Category{Number: n, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

type Category struct {
	Number int
	Label  string
}

// SwapRouter holds a StaticRouter that can be replaced while in use.
type SwapRouter struct {
	p atomic.Pointer[StaticRouter]
}

func NewSwapRouter(r StaticRouter) *SwapRouter {
	s := &SwapRouter{}
	s.Store(r)
	return s
}

func (s *SwapRouter) Store(r StaticRouter) {
	s.p.Store(&r)
}

func (s *SwapRouter) Load() StaticRouter {
	return *s.p.Load()
}

func (s *SwapRouter) Route(category int) Target { return s.p.Load().Route(category) }

func (s *SwapRouter) IsStaffChat(chatID int64) bool { return s.p.Load().IsStaffChat(chatID) }

func (s *SwapRouter) Labels() []Category { return s.p.Load().Labels() }
