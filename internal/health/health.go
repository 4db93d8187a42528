package health

import (
	"context"
	"time"
)

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type Result struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Probe runs every checker with a shared deadline and reports each outcome in
// order. healthy is false when any checker failed.
func Probe(ctx context.Context, timeout time.Duration, checks []Checker) (results []Result, healthy bool) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	healthy = true
	results = make([]Result, 0, len(checks))
	for _, c := range checks {
		r := Result{Name: c.Name(), OK: true}
		if err := c.Check(ctx); err != nil {
			r.OK = false
			r.Error = err.Error()
			healthy = false
		}
		results = append(results, r)
	}
	return results, healthy
}
