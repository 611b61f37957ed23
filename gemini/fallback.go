package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrExhausted = errors.New("gemini: every model failed")

type Attempt struct {
	Model   string
	Err     error
	Elapsed time.Duration
}

type Outcome struct {
	Text     string
	Model    string
	Attempts []Attempt
}

// Fallback asks each model in order, bounding every attempt by timeout,
// and returns the first usable answer. accept may reject a text answer;
// nil accepts any non-empty text. Each model is tried once.
func Fallback(ctx context.Context, m Model, models []string, parts []Part, timeout time.Duration, accept func(string) error) (Outcome, error) {
	var out Outcome
	var errs []error

	for _, model := range models {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		text, err := m.Generate(attemptCtx, model, parts)
		cancel()
		if err == nil && accept != nil {
			err = accept(text)
		}

		out.Attempts = append(out.Attempts, Attempt{Model: model, Err: err, Elapsed: time.Since(start)})
		if err == nil {
			out.Text = text
			out.Model = model
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
	}

	if len(models) == 0 {
		errs = append(errs, errors.New("no models configured"))
	}
	return out, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}
