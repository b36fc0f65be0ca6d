package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/pageforge/docserve/internal/bundle"
	"github.com/pageforge/docserve/internal/cfg"
	"github.com/pageforge/docserve/internal/cryptoutil"
	"github.com/pageforge/docserve/internal/health"
	"github.com/pageforge/docserve/internal/httpserver"
	"github.com/pageforge/docserve/internal/log"
	"github.com/pageforge/docserve/internal/metrics"
	"github.com/pageforge/docserve/internal/opshttp"
	"github.com/pageforge/docserve/internal/otelx"
	"github.com/pageforge/docserve/internal/prof"
	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/ratelimit"
	"github.com/pageforge/docserve/internal/registry"
	"github.com/pageforge/docserve/internal/resolver"
	"github.com/pageforge/docserve/internal/router"
	v "github.com/pageforge/docserve/internal/version"
	"github.com/pageforge/docserve/internal/webassets"
)

const appName = "docserve"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s\n", appName, vi)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix DOCSERVE_ and validate
	cfg.FillFromEnv(flag.CommandLine, "DOCSERVE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        appName,
		Version:    vi.Version,
		Commit:     vi.Commit,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"ops_port", conf.OpsPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_bundle_updates", conf.EnableBundleUpdates,
		"enable_rate_limit", conf.EnableRateLimit,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"base_path", conf.BasePath,
		"mount_prefix", conf.MountPrefix,
		"bundle_ssm_param", conf.BundleSSMParam,
		"bundle_s3_bucket", conf.BundleS3Bucket,
		"bundle_s3_prefix", conf.BundleS3Prefix,
		"bundle_signing_key_arn", conf.BundleSigningKeyARN,
		"poll_interval", conf.PollInterval.String(),
		"stale_threshold", conf.StaleThreshold.String(),
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// Content plumbing: bundles register into the registry by
	// identifier and mount into the router by path. The resolver walks
	// both per request.
	rt := router.New()
	reg := registry.New()

	var watcher *bundle.Watcher
	if conf.EnableBundleUpdates {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}

		var releaseVerifier bundle.ReleaseVerifier
		if conf.BundleSigningKeyARN != "" {
			releaseVerifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.BundleSigningKeyARN)
		}

		loader, err := bundle.NewLoader(ctx, bundle.LoaderOptions{
			Logger:    L,
			SSMParam:  conf.BundleSSMParam,
			S3Bucket:  conf.BundleS3Bucket,
			S3Prefix:  conf.BundleS3Prefix,
			Verifier:  releaseVerifier,
			AWSConfig: &awsCfg,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create bundle loader")
			os.Exit(1)
		}

		watcher = bundle.NewWatcher(&bundle.WatcherOptions{
			Logger:         L,
			Loader:         loader,
			Registry:       reg,
			Router:         rt,
			PollInterval:   conf.PollInterval,
			MountPrefix:    conf.MountPrefix,
			StaleThreshold: conf.StaleThreshold,
			Metrics:        m,
			Validation:     bundle.DefaultValidationOptions(),
			OnSwap: func(bundleID, hash string) {
				m.SetActiveBundle(bundleID, hash)
				m.SetBundlesRegistered(reg.Len())
			},
		})

		if err := watcher.LoadInitial(ctx); err != nil {
			L.Error(ctx, err, "initial bundle load failed, serving maintenance page until a release is available")
		}
	}

	// keep the router serviceable even before the first bundle lands
	if rt.Validate() != nil {
		if err := rt.Register(provider.NewFS(webassets.MaintenanceFS()), "/"); err != nil {
			L.Error(ctx, err, "failed to mount maintenance content")
			os.Exit(1)
		}
	}
	if err := rt.Validate(); err != nil {
		L.Error(ctx, err, "content router not serviceable")
		os.Exit(1)
	}

	if watcher != nil {
		go watcher.Run(ctx)
	}

	docs, err := resolver.New(resolver.Options{
		Router:   rt,
		Registry: reg,
		Shell:    webassets.ShellHTML(),
		BasePath: conf.BasePath,
		Logger:   L,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create request resolver")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness requires the gate open and a serviceable router; with
	// updates enabled the release pointer must also be fresh
	probes := []health.Probe{gate.Probe(), health.Serviceable(rt)}
	if watcher != nil {
		probes = append(probes, health.Freshness(watcher.LastSuccess(), conf.StaleThreshold))
	}
	readiness := health.All(probes...)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.EnableRateLimit {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
			ratelimit.WithTrustForwarded(conf.TrustForwarded),
			// increment prometheus counter on each denied request
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// only log the first time an ip is denied each time it is cleaned from the bucket
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	docsHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Docs:         docs,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ExtraRoutes: func(r httpserver.Router) {
			r.Get("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				fmt.Fprint(w, "User-agent: *\nAllow: /\n")
			})
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start docs http listener")
		os.Exit(1)
	}
	defer func() { _ = docsHTTPStop(context.Background()) }()

	// start ops listener to serve metrics, health checks and pprof
	// sg restricts inbound to internal monitoring infrastructure
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.OpsPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// allow in-flight requests to finish and the load balancer to
	// notice the failing readiness check before the listeners close
	L.Info(context.Background(), "sleeping 15s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := docsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "docs http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
