package catalog

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Repository is the persistence contract behind the catalog service.
type Repository interface {
	Create(ctx context.Context, in ProductInput) (*Product, error)
	Update(ctx context.Context, id string, in ProductInput) (*Product, error)
	SetImage(ctx context.Context, id, url string) (*Product, error)
	Delete(ctx context.Context, id string) (*Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, f ListFilter) ([]Product, error)
	DecrementStock(ctx context.Context, id string, qty int) (*Product, error)
}

// Service wraps the repository and pushes every successful write to the broker.
type Service struct {
	repo        Repository
	broker      *Broker
	log         zerolog.Logger
	sfg         singleflight.Group
	localEvents bool
}

type ServiceOption func(*Service)

// WithStreamFeed leaves publishing to a StreamFeed on the same broker. The
// service then stops publishing its own writes, which the feed would repeat.
func WithStreamFeed() ServiceOption {
	return func(s *Service) { s.localEvents = false }
}

func NewService(repo Repository, broker *Broker, log zerolog.Logger, opts ...ServiceOption) *Service {
	if broker == nil {
		broker = NewBroker(0)
	}
	s := &Service{
		repo:        repo,
		broker:      broker,
		log:         log.With().Str("component", "catalog").Logger(),
		localEvents: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	p, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.publish(EventCreated, *p)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.publish(EventUpdated, *p)
	return p, nil
}

func (s *Service) SetImage(ctx context.Context, id, url string) (*Product, error) {
	p, err := s.repo.SetImage(ctx, id, url)
	if err != nil {
		return nil, err
	}
	s.publish(EventUpdated, *p)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.publish(EventDeleted, *p)
	return nil
}

// Get collapses concurrent lookups of the same id into one store read. The
// shared read does not inherit the cancellation of whichever caller started it.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		return s.repo.Get(shared, id)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*Product)
	return &p, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Product, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) DecrementStock(ctx context.Context, id string, qty int) (*Product, error) {
	p, err := s.repo.DecrementStock(ctx, id, qty)
	if err != nil {
		return nil, err
	}
	s.publish(EventUpdated, *p)
	return p, nil
}

// Subscribe streams catalog changes until the returned cancel func is called.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.broker.Subscribe()
}

func (s *Service) publish(t EventType, p Product) {
	if !s.localEvents {
		return
	}
	n := s.broker.Publish(Event{Type: t, Product: p})
	s.log.Debug().Str("event", string(t)).Str("product_id", p.ID).Int("subscribers", n).Msg("catalog event")
}
