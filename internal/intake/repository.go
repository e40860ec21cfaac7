package intake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"clinic-intake/internal/platform/apperror"
)

// UpdateFunc derives the next session state. Returning an error leaves the stored
// session unchanged.
type UpdateFunc func(State) (State, error)

type Repository interface {
	Save(ctx context.Context, s State) error
	GetByID(ctx context.Context, id uuid.UUID) (*State, error)
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*State, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memoryRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]State
}

// NewMemoryRepository keeps sessions in process memory; they are gone on restart.
func NewMemoryRepository() Repository {
	return &memoryRepository{sessions: make(map[uuid.UUID]State)}
}

func sessionNotFound(id uuid.UUID) error {
	return apperror.NewNotFoundError("intake session " + id.String() + " not found")
}

func (r *memoryRepository) Save(_ context.Context, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.clone()
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	out := s.clone()
	return &out, nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	next, err := fn(current.clone())
	if err != nil {
		return nil, err
	}
	r.sessions[id] = next.clone()
	return &next, nil
}

func (r *memoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return sessionNotFound(id)
	}
	delete(r.sessions, id)
	return nil
}
