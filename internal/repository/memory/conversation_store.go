package memory

import (
	"context"
	"sort"
	"sync"

	"support-chat-be/internal/entity"
	"support-chat-be/internal/repository/contract"
	"support-chat-be/internal/repository/specification"
	"support-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of the conversation store contracts.
// It backs the service tests and the simulation tool; the gorm
// implementation is the production store.
type Store struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*entity.Conversation
	messages      map[uuid.UUID][]*entity.Message
	events        map[uuid.UUID][]*entity.ConversationEvent
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[uuid.UUID]*entity.Conversation),
		messages:      make(map[uuid.UUID][]*entity.Message),
		events:        make(map[uuid.UUID][]*entity.ConversationEvent),
	}
}

// NewRepositoryFactory wraps the store as a unitofwork.RepositoryFactory.
func NewRepositoryFactory(s *Store) unitofwork.RepositoryFactory {
	return &factory{store: s}
}

type factory struct {
	store *Store
}

func (f *factory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &uow{store: f.store}
}

type uow struct {
	store *Store
}

// The in-memory store is not transactional; Begin/Commit/Rollback are no-ops.
func (u *uow) Begin(ctx context.Context) error { return nil }
func (u *uow) Commit() error                   { return nil }
func (u *uow) Rollback() error                 { return nil }

func (u *uow) ConversationRepository() contract.ConversationRepository {
	return &conversationRepo{store: u.store}
}

func (u *uow) MessageRepository() contract.MessageRepository {
	return &messageRepo{store: u.store}
}

func (u *uow) ConversationEventRepository() contract.ConversationEventRepository {
	return &eventRepo{store: u.store}
}

// Conversation repository

type conversationRepo struct {
	store *Store
}

func (r *conversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	cp := *c
	r.store.conversations[c.Id] = &cp
	return nil
}

func (r *conversationRepo) Update(ctx context.Context, c *entity.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *c
	r.store.conversations[c.Id] = &cp
	return nil
}

func (r *conversationRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *conversationRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.Conversation, 0)
	for _, c := range r.store.conversations {
		if matchConversation(c, specs) {
			cp := *c
			result = append(result, &cp)
		}
	}
	applyConversationOrder(result, specs)
	return result, nil
}

func (r *conversationRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func matchConversation(c *entity.Conversation, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if c.Id != s.ID {
				return false
			}
		case specification.ByStatus:
			if c.Status != s.Status {
				return false
			}
		}
	}
	return true
}

func applyConversationOrder(list []*entity.Conversation, specs []specification.Specification) {
	for _, spec := range specs {
		if s, ok := spec.(specification.OrderBy); ok && s.Field == "updated_at" {
			sort.SliceStable(list, func(i, j int) bool {
				if s.Desc {
					return list[i].UpdatedAt.After(list[j].UpdatedAt)
				}
				return list[i].UpdatedAt.Before(list[j].UpdatedAt)
			})
		}
	}
}

// Message repository

type messageRepo struct {
	store *Store
}

func (r *messageRepo) Create(ctx context.Context, m *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *m
	r.store.messages[m.ConversationId] = append(r.store.messages[m.ConversationId], &cp)
	return nil
}

func (r *messageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.Message, 0)
	for _, spec := range specs {
		if s, ok := spec.(specification.ByConversationID); ok {
			for _, m := range r.store.messages[s.ConversationID] {
				cp := *m
				result = append(result, &cp)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *messageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// Event-log repository

type eventRepo struct {
	store *Store
}

func (r *eventRepo) Create(ctx context.Context, e *entity.ConversationEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *e
	r.store.events[e.ConversationId] = append(r.store.events[e.ConversationId], &cp)
	return nil
}

func (r *eventRepo) MaxSeq(ctx context.Context, conversationId uuid.UUID) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var max int64
	for _, e := range r.store.events[conversationId] {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

func (r *eventRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var after int64 = -1
	var convID uuid.UUID
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByConversationID:
			convID = s.ConversationID
		case specification.SeqAfter:
			after = s.Seq
		}
	}

	result := make([]*entity.ConversationEvent, 0)
	for _, e := range r.store.events[convID] {
		if e.Seq > after {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}
