// Package plfaddr extracts PLC block reference addresses from Siemens TIA
// Portal project container files (.plf).
//
// A .plf container is an append-mostly log of mixed-format records: raw
// block headers, zlib-compressed XML fragments describing block members, and
// small structured markers tying block names to numeric addresses. The
// parser walks the bytes in five passes over one immutable buffer, links the
// harvested records into an element graph, and materializes a flat list of
// (dotted symbolic name, reference address) pairs.
//
// # Basic Usage
//
//	addrs, err := plfaddr.ParseFile("project.plf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range addrs {
//	    fmt.Printf("%s, %s\n", a.Name, a.ReferenceAddress)
//	}
//
// The passes log recoverable per-record failures and keep going; wire a
// logger to see them:
//
//	logger := logrus.New()
//	addrs, _ := plfaddr.ParseFile("project.plf", plfaddr.WithLogger(logger))
//
// # Package Structure
//
// This package is a thin driver over the pass packages (fragment, ident,
// rawblock, element, xmlblock, address); use those directly for fine-grained
// access to intermediate records.
package plfaddr

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/address"
	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/element"
	"github.com/plckit/plfaddr/fragment"
	"github.com/plckit/plfaddr/ident"
	"github.com/plckit/plfaddr/internal/options"
	"github.com/plckit/plfaddr/rawblock"
	"github.com/plckit/plfaddr/scan"
	"github.com/plckit/plfaddr/xmlblock"
)

// reorganizedThreshold is the container size past which a compacted
// ("Reorganized") container is expected to have evicted earlier records.
const reorganizedThreshold = 5 * 1024

// Parser runs the extraction pipeline over one container buffer.
type Parser struct {
	buf         *container.Buffer
	log         logrus.FieldLogger
	scanTimeout time.Duration
	probeWindow int
	maxDepth    int
}

// Option configures a Parser.
type Option = options.Option[*Parser]

// WithLogger sets the log sink for per-record diagnostics. The default
// discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return options.New(func(p *Parser) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		p.log = l

		return nil
	})
}

// WithScanTimeout bounds each regex scan over the container.
func WithScanTimeout(d time.Duration) Option {
	return options.New(func(p *Parser) error {
		if d <= 0 {
			return fmt.Errorf("scan timeout must be positive, got %v", d)
		}
		p.scanTimeout = d

		return nil
	})
}

// WithProbeWindow sets the probing-decompression window of the fragment pass.
func WithProbeWindow(n int) Option {
	return options.New(func(p *Parser) error {
		if n <= 0 {
			return fmt.Errorf("probe window must be positive, got %d", n)
		}
		p.probeWindow = n

		return nil
	})
}

// WithMaxExpansionDepth bounds reference expansion in the address pass.
func WithMaxExpansionDepth(n int) Option {
	return options.New(func(p *Parser) error {
		if n <= 0 {
			return fmt.Errorf("expansion depth must be positive, got %d", n)
		}
		p.maxDepth = n

		return nil
	})
}

// NewParser creates a Parser over data with custom options.
func NewParser(data []byte, opts ...Option) (*Parser, error) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	p := &Parser{
		buf:         container.New(data),
		log:         discard,
		scanTimeout: scan.DefaultTimeout,
		probeWindow: fragment.DefaultProbeWindow,
		maxDepth:    address.DefaultMaxExpansionDepth,
	}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}

	return p, nil
}

// Parse runs the six passes and returns the flattened address list.
func (p *Parser) Parse() []address.Address {
	sc := scan.New(p.scanTimeout)

	frags := fragment.NewExtractor(p.buf, sc, p.log, p.probeWindow).Extract()
	refs := ident.NewResolver(p.buf, sc, p.log).Resolve(frags)
	raw := rawblock.NewExtractor(p.buf, sc, p.log).Extract()

	if p.buf.Len() > reorganizedThreshold && len(raw.Blocks) == 0 {
		p.log.Warnf("no raw block headers in %d-byte container; earlier records were likely evicted by reorganization", p.buf.Len())
	}

	els := element.NewExtractor(p.buf, sc, p.log).Extract(raw.Blocks)
	xmls := xmlblock.NewDecoder(p.buf, sc, p.log).Decode(frags)
	element.Link(els, raw, refs, xmls, p.log)

	return address.NewMaterializer(p.log, p.maxDepth).Materialize(els)
}

// Parse extracts the address list from an in-memory container image.
func Parse(data []byte, opts ...Option) ([]address.Address, error) {
	p, err := NewParser(data, opts...)
	if err != nil {
		return nil, err
	}

	return p.Parse(), nil
}

// ParseFile extracts the address list from the container at path. Only the
// file read can fail; per-record parse failures are logged and skipped.
func ParseFile(path string, opts ...Option) ([]address.Address, error) {
	buf, err := container.FromFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(buf.Bytes(), opts...)
}
