package piece

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry holds the pieces available to a worker, by name and version
type Registry struct {
	pieces map[string]map[string]*Piece
	latest map[string]string
	mu     sync.RWMutex
}

var (
	ErrPieceNotFound   = errors.New("piece not found")
	ErrActionNotFound  = errors.New("piece action not found")
	ErrTriggerNotFound = errors.New("piece trigger not found")
	ErrPropNotFound    = errors.New("piece property not found")
	ErrPieceInvalid    = errors.New("piece name and version required")
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		pieces: map[string]map[string]*Piece{},
		latest: map[string]string{},
	}
}

// Register adds a piece. The most recently registered version of a name is
// used when a lookup gives no version
func (r *Registry) Register(p *Piece) error {
	if p.Name == "" || p.Version == "" {
		return ErrPieceInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.pieces[p.Name]
	if !ok {
		versions = map[string]*Piece{}
		r.pieces[p.Name] = versions
	}
	versions[p.Version] = p
	r.latest[p.Name] = p.Version
	return nil
}

// Get returns the named piece at version, or its latest version when
// version is empty
func (r *Registry) Get(name, version string) (*Piece, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == "" {
		version = r.latest[name]
	}
	if p, ok := r.pieces[name][version]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrPieceNotFound, name, version)
}

// Action returns a piece together with one of its actions
func (r *Registry) Action(
	name, version, action string,
) (*Piece, *Action, error) {
	p, err := r.Get(name, version)
	if err != nil {
		return nil, nil, err
	}
	a, ok := p.Actions[action]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrActionNotFound, name, action)
	}
	return p, a, nil
}

// Trigger returns a piece together with one of its triggers
func (r *Registry) Trigger(
	name, version, trigger string,
) (*Piece, *Trigger, error) {
	p, err := r.Get(name, version)
	if err != nil {
		return nil, nil, err
	}
	t, ok := p.Triggers[trigger]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s",
			ErrTriggerNotFound, name, trigger)
	}
	return p, t, nil
}

// Names returns the registered piece names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]string, 0, len(r.pieces))
	for name := range r.pieces {
		res = append(res, name)
	}
	slices.Sort(res)
	return res
}
