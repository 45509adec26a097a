// Package metrics instruments repositories with Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
)

// Outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeValidation  = "validation"
	OutcomeConflict    = "conflict"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

type Collectors struct {
	Duration *prometheus.HistogramVec
	Total    *prometheus.CounterVec
}

func NewCollectors() *Collectors {
	return &Collectors{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "user_repository",
			Name:      "operation_duration_seconds",
			Help:      "Duration of user repository operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "user_repository",
			Name:      "operations_total",
			Help:      "User repository operations by outcome.",
		}, []string{"op", "outcome"}),
	}
}

func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.Duration, c.Total} {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				switch existing := are.ExistingCollector.(type) {
				case *prometheus.HistogramVec:
					c.Duration = existing
				case *prometheus.CounterVec:
					c.Total = existing
				}
				continue
			}
			return err
		}
	}
	return nil
}

// UserRepository records duration and outcome of every call to the wrapped
// repository. Errors pass through unchanged.
type UserRepository struct {
	next repository.UserRepository
	c    *Collectors
}

func NewUserRepository(next repository.UserRepository, c *Collectors) *UserRepository {
	return &UserRepository{next: next, c: c}
}

func (r *UserRepository) Save(ctx context.Context, u entity.NewUser) (*entity.User, error) {
	start := time.Now()
	out, err := r.next.Save(ctx, u)
	r.record("save", start, err)
	return out, err
}

func (r *UserRepository) Update(ctx context.Context, id int64, p entity.UserPatch) (*entity.User, error) {
	start := time.Now()
	out, err := r.next.Update(ctx, id, p)
	r.record("update", start, err)
	return out, err
}

func (r *UserRepository) FindByNickname(ctx context.Context, nickname string, with entity.Relation) (*entity.User, error) {
	op := "find_by_nickname"
	switch {
	case with.Has(entity.WithChannels | entity.WithBlockedUsers):
		op = "find_by_nickname_with_channels_and_blocked_users"
	case with.Has(entity.WithChannels):
		op = "find_by_nickname_with_channels"
	case with.Has(entity.WithBlockedUsers):
		op = "find_by_nickname_with_blocked_users"
	}
	start := time.Now()
	out, err := r.next.FindByNickname(ctx, nickname, with)
	r.record(op, start, err)
	return out, err
}

func (r *UserRepository) record(op string, start time.Time, err error) {
	r.c.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	r.c.Total.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome classifies err into one of the outcome label values.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, domain.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrStorageUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)
