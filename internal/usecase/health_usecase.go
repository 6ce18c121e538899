package usecase

import (
	"context"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool; redis is adapted with a closure.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthUsecase interface {
	Check(ctx context.Context) map[string]string
}

type healthUsecase struct {
	deps map[string]Pinger
}

func NewHealthUsecase(deps map[string]Pinger) HealthUsecase {
	return &healthUsecase{deps: deps}
}

func (u *healthUsecase) Check(ctx context.Context) map[string]string {
	result := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for name, dep := range u.deps {
		if dep == nil {
			result[name] = "disabled"
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := dep.Ping(pingCtx); err != nil {
			result[name] = "down"
			result["status"] = "degraded"
		} else {
			result[name] = "up"
		}
		cancel()
	}
	return result
}
