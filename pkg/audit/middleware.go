package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
)

// outcome is implemented by result envelopes that can report failure
// without an error.
type outcome interface {
	OK() bool
}

// Middleware wraps a tool endpoint: measures duration, captures
// params/result/error and logs asynchronously via the Logger.
func Middleware(logger Logger, tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, request)

			entry := &Entry{
				Tool:       tool,
				Transport:  kit.GetTransport(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}

			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			switch {
			case err != nil:
				entry.Error = err.Error()
				entry.Status = StatusError
			default:
				entry.Status = StatusSuccess
				if o, ok := resp.(outcome); ok && !o.OK() {
					entry.Status = StatusFailure
				}
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = string(result)
				}
			}

			logger.LogAsync(entry)
			return resp, err
		}
	}
}
