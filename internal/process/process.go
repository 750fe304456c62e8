// Package process turns downloaded report files into frames ready for the
// database. A processor is built per job, reads every file the fetch step
// produced, and keeps the result so the upload step can hand it to the sink.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"go-report-etl/internal/frame"
	"go-report-etl/internal/model"
	"go-report-etl/internal/sink"
)

// Processor reads report files and uploads what it read. Process must run
// before Upload; processors are single-job and not safe for reuse.
type Processor interface {
	Process(ctx context.Context, paths []string) (*frame.Frame, error)
	Upload(ctx context.Context, up Uploader, spec *model.UploadSpec) error
}

// Uploader lands one frame in one table. *sink.Sink satisfies it.
type Uploader interface {
	Upload(ctx context.Context, f *frame.Frame, target sink.Target) error
}

// Options carries the job identity and the processor block of its
// descriptor.
type Options struct {
	Service    string
	SubService string
	Spec       *model.ProcessSpec
	Log        zerolog.Logger
}

// New builds the processor the descriptor names.
func New(opts Options) (Processor, error) {
	switch opts.Spec.Name {
	case "csv":
		return &tabular{opts: opts, read: frame.ReadCSV}, nil
	case "excel":
		return &tabular{opts: opts, read: frame.ReadExcel}, nil
	case "htmltable":
		return &tabular{opts: opts, read: frame.ReadHTMLTable}, nil
	case "customFormacionConsolidado":
		return newFormacion(opts), nil
	}
	return nil, model.Configf("processor %q is not supported", opts.Spec.Name)
}

// tabular is the shape shared by the plain file formats: read every path
// with the job's options, concatenate into one frame, then run the cleaning
// steps once over the whole.
type tabular struct {
	opts   Options
	read   func(r io.Reader, ro frame.ReadOptions) (*frame.Frame, error)
	result *frame.Frame
}

func (p *tabular) Process(ctx context.Context, paths []string) (*frame.Frame, error) {
	frames := make([]*frame.Frame, 0, len(paths))
	for _, path := range paths {
		f, err := p.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		frames = append(frames, f)
	}
	merged := frame.Concat(frames...)
	if err := frame.Apply(merged, p.opts.Spec.Cleaning); err != nil {
		return nil, err
	}
	p.result = merged
	return merged, nil
}

func (p *tabular) readFile(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return p.read(file, frame.ReadOptions{
		SkipRows:  p.opts.Spec.SkipRows,
		Separator: p.opts.Spec.Separator,
		Encoding:  p.opts.Spec.Encoding,
		Sheet:     p.opts.Spec.SheetName.String(),
	})
}

func (p *tabular) Upload(ctx context.Context, up Uploader, spec *model.UploadSpec) error {
	if p.result == nil {
		return fmt.Errorf("nothing to upload: no files were processed")
	}
	target, err := standardTarget(spec)
	if err != nil {
		return err
	}
	return up.Upload(ctx, p.result, target)
}

func standardTarget(spec *model.UploadSpec) (sink.Target, error) {
	if spec.Database == "" {
		return sink.Target{}, model.Configf("upload database must be provided")
	}
	if spec.Table == "" {
		return sink.Target{}, model.Configf("upload table must be provided")
	}
	return sink.Target{
		Database:    spec.Database,
		Schema:      spec.Schema,
		Table:       spec.Table,
		IfExists:    strings.ToLower(spec.IfExists),
		VarcharSize: spec.VarcharSize,
	}, nil
}
