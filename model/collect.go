package model

import (
	"context"
	"fmt"
)

// Collect drains a Generate call and returns the final (non-partial)
// response. Partial responses are forwarded to onPartial when it is non-nil.
// The first error received (or context cancellation) aborts collection.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if onPartial != nil {
					onPartial(resp)
				}
				continue
			}
			final = resp
			hasFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !hasFinal {
		return Response{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}

	return final, nil
}
