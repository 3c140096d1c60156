package browse

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScanResult is the outcome for one caster of a Scan.
type ScanResult struct {
	Request Request
	Result  *Result
	Err     error
}

// OK reports whether the caster was browsed successfully.
func (r ScanResult) OK() bool { return r.Err == nil && r.Result != nil }

// Scan browses every request with bounded concurrency. Results keep the
// order of reqs. A failing caster is reported in its ScanResult and does
// not stop the others; only cancellation of ctx aborts the scan.
func (s *Service) Scan(ctx context.Context, reqs []Request) ([]ScanResult, error) {
	results := make([]ScanResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		results[i].Request = req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Browse(gctx, req)
			results[i] = ScanResult{Request: req, Result: res, Err: err}
			if err != nil {
				zap.L().Warn("scan: caster failed", zap.String("caster", req.Caster), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "browse: scan")
	}
	if err := ctx.Err(); err != nil {
		return results, eris.Wrap(err, "browse: scan")
	}
	return results, nil
}
