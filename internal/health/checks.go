package health

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/oratio/internal/resilience"
	"github.com/MrWong99/oratio/internal/rules"
)

// Pinger is a dependency with its own health probe, such as
// history.PostgresStore or cache.Redis.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Ping returns a required checker that calls p.HealthCheck.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.HealthCheck}
}

// Rules returns a required checker that compiles the rule pack for
// language. A missing or broken default pack makes every analysis fail.
func Rules(repo *rules.Repository, language string) Checker {
	return Checker{Name: "rules", Check: func(context.Context) error {
		_, err := repo.Load(language)
		return err
	}}
}

// Breakers returns an optional checker that fails while every circuit
// breaker reported by states is open.
func Breakers(name string, states func() map[string]resilience.State) Checker {
	return Checker{Name: name, Optional: true, Check: func(context.Context) error {
		s := states()
		if len(s) == 0 {
			return nil
		}
		var open []string
		for backend, st := range s {
			if st != resilience.StateOpen {
				return nil
			}
			open = append(open, backend)
		}
		slices.Sort(open)
		return fmt.Errorf("all circuit breakers open: %s", strings.Join(open, ", "))
	}}
}
