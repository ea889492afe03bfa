package server

import "context"

type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type OkHealthChecker struct {
}

func NewOkHealthChecker() *OkHealthChecker {
	return &OkHealthChecker{}
}

func (hc *OkHealthChecker) Healthy(ctx context.Context) bool {
	return true
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) bool

func (f HealthCheckerFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// NamedHealthCheckers is healthy when every member is.
type NamedHealthCheckers map[string]HealthChecker

func (n NamedHealthCheckers) Healthy(ctx context.Context) bool {
	for _, hc := range n {
		if !hc.Healthy(ctx) {
			return false
		}
	}
	return true
}

// Report returns the result of every member by name.
func (n NamedHealthCheckers) Report(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(n))
	for name, hc := range n {
		out[name] = hc.Healthy(ctx)
	}
	return out
}
