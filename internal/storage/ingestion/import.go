package ingestion

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/airq/config"
	"github.com/xtxerr/airq/internal/errors"
)

// Opener opens a source URI for reading.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// FileReport is the outcome of importing one source.
type FileReport struct {
	Report
	Err error
}

// ImportFiles ingests every uri as an independent stream, running at most
// limit streams at once. A fatal error on one source does not stop the
// others. Reports are returned in uri order.
func (p *Pipeline) ImportFiles(ctx context.Context, opener Opener, limit int, uris ...string) []FileReport {
	if limit <= 0 {
		limit = config.DefaultMaxConcurrentFiles
	}

	reports := make([]FileReport, len(uris))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, uri := range uris {
		g.Go(func() error {
			reports[i] = p.importOne(ctx, opener, uri)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

func (p *Pipeline) importOne(ctx context.Context, opener Opener, uri string) FileReport {
	rc, err := opener.Open(ctx, uri)
	if err != nil {
		p.stats.StreamsFailed.Add(1)
		return FileReport{Report: Report{Source: uri}, Err: err}
	}
	defer rc.Close()

	report, err := p.IngestNamed(ctx, rc, uri)
	return FileReport{Report: report, Err: err}
}

// ImportErrors joins the errors of failed imports, or returns nil.
func ImportErrors(reports []FileReport) error {
	var errs []error
	for _, r := range reports {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
