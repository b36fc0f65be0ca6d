// Package resolver is the top-level entry point for one inbound
// content request. It classifies the trailing path segment, then
// either fetches a real asset through the content router or the
// bundle registry, or falls back to the application shell document
// for route-shaped paths.
package resolver

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/pageforge/docserve/internal/docuri"
	"github.com/pageforge/docserve/internal/log"
	"github.com/pageforge/docserve/internal/pathkind"
	"github.com/pageforge/docserve/internal/registry"
	"github.com/pageforge/docserve/internal/router"
	"github.com/pageforge/docserve/internal/xerrors"
)

var (
	// ErrMalformedRequest covers request paths that cannot be
	// interpreted: unparsable doc addresses, dot segments, embedded
	// NULs. Maps to 400 at the boundary.
	ErrMalformedRequest = xerrors.New("malformed request path")
	// ErrOutOfScope marks a request outside the configured base path.
	// Maps to 403 at the boundary.
	ErrOutOfScope = xerrors.New("request outside served base path")
)

// Outcome labels resolution results for metrics and logging.
const (
	OutcomeAsset     = "asset"
	OutcomeShell     = "shell"
	OutcomeNotFound  = "not_found"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Metrics receives resolution observability signals. Implemented by
// the metrics package; nil-safe via the nopMetrics default.
type Metrics interface {
	IncResolved(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) IncResolved(string) {}

// Result is a fully resolved response body with its content type.
type Result struct {
	Body        []byte
	ContentType string
	ETag        string
	// Shell is true when Body is the application shell fallback
	// rather than a looked-up asset.
	Shell bool
}

type Options struct {
	Router   *router.Router
	Registry *registry.Registry

	// Shell is the application shell document served for route-shaped
	// paths. Required.
	Shell []byte

	// BasePath scopes which request paths this resolver serves.
	// Requests outside it fail with ErrOutOfScope. Empty means "/".
	BasePath string

	Logger  log.Logger
	Metrics Metrics
}

// Resolver orchestrates classifier, router, and registry for inbound
// requests. Concurrent identical requests are independent; there is
// no coalescing.
type Resolver struct {
	router   *router.Router
	registry *registry.Registry
	shell    []byte
	shellTag string
	basePath string
	logger   log.Logger
	metrics  Metrics
	tasks    *taskSet
}

func New(opts Options) (*Resolver, error) {
	if len(opts.Shell) == 0 {
		return nil, xerrors.New("resolver requires a shell document")
	}
	if opts.Router == nil {
		return nil, xerrors.New("resolver requires a router")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	base := "/" + strings.Trim(opts.BasePath, "/")

	return &Resolver{
		router:   opts.Router,
		registry: opts.Registry,
		shell:    opts.Shell,
		shellTag: etag(opts.Shell),
		basePath: base,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tasks:    newTaskSet(),
	}, nil
}

// Resolve maps a raw request path to content. Accepts both plain URL
// paths and full doc:// addresses; the latter resolve through the
// bundle registry, the former through the content router.
func (r *Resolver) Resolve(ctx context.Context, rawPath string) (Result, error) {
	if strings.HasPrefix(rawPath, docuri.Scheme+":") {
		return r.resolveAddress(ctx, rawPath)
	}
	return r.resolvePath(ctx, rawPath)
}

func (r *Resolver) resolvePath(ctx context.Context, rawPath string) (Result, error) {
	p := rawPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if err := rejectUnsafe(p); err != nil {
		r.metrics.IncResolved(OutcomeRejected)
		return Result{}, err
	}

	// trailing-slash requests are a data problem upstream; base
	// stripping trims the slash away, so inspect before that happens
	if p != "/" && strings.HasSuffix(p, "/") {
		r.logger.Warn(ctx, "request path has empty trailing segment", "path", rawPath)
	}

	rel, ok := r.underBase(p)
	if !ok {
		r.metrics.IncResolved(OutcomeRejected)
		return Result{}, xerrors.Wrapf(ErrOutOfScope, "%s not under %s", p, r.basePath)
	}

	segment := lastSegment(rel)
	if pathkind.Classify(segment) == pathkind.Route {
		r.metrics.IncResolved(OutcomeShell)
		return r.shellResult(), nil
	}

	p2, remaining, err := r.router.Resolve(rel)
	if err != nil {
		// no root provider at all; configuration error, not a 404
		return Result{}, err
	}

	body, err := p2.Fetch(ctx, remaining)
	if err != nil {
		if ctx.Err() != nil {
			r.metrics.IncResolved(OutcomeCancelled)
			return Result{}, ctx.Err()
		}
		r.metrics.IncResolved(OutcomeNotFound)
		return Result{}, err
	}

	r.metrics.IncResolved(OutcomeAsset)
	return Result{Body: body, ContentType: contentTypeFor(segment), ETag: etag(body)}, nil
}

func (r *Resolver) resolveAddress(ctx context.Context, raw string) (Result, error) {
	addr, err := docuri.Parse(raw)
	if err != nil {
		r.metrics.IncResolved(OutcomeRejected)
		return Result{}, xerrors.Wrapf(ErrMalformedRequest, "%v", err)
	}

	segment := addr.LastPathComponent()
	if segment == "" {
		r.logger.Warn(ctx, "doc address has no path components", "address", raw)
	}
	if pathkind.Classify(segment) == pathkind.Route {
		r.metrics.IncResolved(OutcomeShell)
		return r.shellResult(), nil
	}

	if r.registry == nil {
		r.metrics.IncResolved(OutcomeNotFound)
		return Result{}, xerrors.Wrapf(registry.ErrUnknownBundle, "%s", addr.BundleID)
	}

	body, err := r.registry.ResolveContent(ctx, addr)
	if err != nil {
		if ctx.Err() != nil {
			r.metrics.IncResolved(OutcomeCancelled)
			return Result{}, ctx.Err()
		}
		r.metrics.IncResolved(OutcomeNotFound)
		return Result{}, err
	}

	r.metrics.IncResolved(OutcomeAsset)
	return Result{Body: body, ContentType: contentTypeFor(segment), ETag: etag(body)}, nil
}

func (r *Resolver) shellResult() Result {
	return Result{Body: r.shell, ContentType: "text/html; charset=utf-8", ETag: r.shellTag, Shell: true}
}

// underBase strips the configured base and reports whether p lives
// under it.
func (r *Resolver) underBase(p string) (string, bool) {
	if r.basePath == "/" {
		return strings.Trim(p, "/"), true
	}
	if p == r.basePath {
		return "", true
	}
	if strings.HasPrefix(p, r.basePath+"/") {
		return strings.Trim(strings.TrimPrefix(p, r.basePath), "/"), true
	}
	return "", false
}

func rejectUnsafe(p string) error {
	if strings.ContainsAny(p, "\x00\\") {
		return xerrors.Wrapf(ErrMalformedRequest, "%q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return xerrors.Wrapf(ErrMalformedRequest, "dot segment in %q", p)
		}
	}
	return nil
}

func lastSegment(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func etag(body []byte) string {
	return `"` + strconvHex(xxhash.Sum64(body)) + `"`
}

// strconvHex formats a 64-bit hash as fixed-width hex.
func strconvHex(v uint64) string {
	const digits = "0123456789abcdef"
	var b [16]byte
	for i := 15; i >= 0; i-- {
		b[i] = digits[v&0xf]
		v >>= 4
	}
	return string(b[:])
}
