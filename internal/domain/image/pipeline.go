package image

import (
	"bytes"
	"context"
	"io"
	"path/filepath"

	"ai-sentinel/internal/platform/errors"
	"ai-sentinel/internal/utils"
)

// DefaultMaxFileSize caps accepted uploads.
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// Pipeline turns an incoming stream into a validated Selection.
type Pipeline struct {
	validator   *Validator
	logger      *utils.Logger
	maxFileSize int64
}

// Options configures the pipeline behaviour.
type Options struct {
	MaxFileSize int64
	Logger      *utils.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader io.Reader
	Name   string
	// DeclaredType is the media type claimed by the caller. Empty means sniff.
	DeclaredType string
}

// NewPipeline constructs an image selection pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Pipeline{
		validator:   NewValidator(opts.MaxFileSize, opts.Logger),
		logger:      opts.Logger,
		maxFileSize: opts.MaxFileSize,
	}
}

// MaxFileSize returns the configured size ceiling.
func (p *Pipeline) MaxFileSize() int64 { return p.maxFileSize }

// Select reads the input and returns a Selection or a *detection.ValidationError.
func (p *Pipeline) Select(ctx context.Context, input Input) (*Selection, error) {
	if input.Reader == nil {
		return nil, errors.New(errors.KindValidation, "image.select", "image reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limited := &io.LimitedReader{R: input.Reader, N: p.maxFileSize + 1}
	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, errors.Wrap(errors.KindTransport, "image.select", "failed to read image bytes", err)
	}

	raw := buf.Bytes()
	result, err := p.validator.Validate(raw, input.DeclaredType)
	if err != nil {
		p.logger.WarnTag("Analyzer", "selection rejected: name=%s err=%v", input.Name, err)
		return nil, err
	}

	name := filepath.Base(input.Name)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}

	sel := &Selection{
		Name:      name,
		MediaType: result.MediaType,
		Size:      int64(len(raw)),
		Data:      raw,
		Format:    result.Format,
		Width:     result.Width,
		Height:    result.Height,
		Sniffed:   result.Sniffed,
		Risk:      result.SecurityRisk,
	}
	p.logger.InfoTag("Analyzer", "selection accepted: name=%s type=%s size=%s dims=%dx%d",
		sel.Name, sel.MediaType, utils.FormatMegabytes(sel.Size), sel.Width, sel.Height)
	return sel, nil
}
