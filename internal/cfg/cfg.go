package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pageforge/docserve/internal/log"
)

type App struct {
	LogJSON             bool
	LogLevel            string
	HTTPPort            int
	OpsPort             int
	EnablePprof         bool
	EnablePyroscope     bool
	EnableTracing       bool
	EnableBundleUpdates bool
	EnableRateLimit     bool
	PyroServer          string
	PyroTenantID        string
	OTLPEndpoint        string
	TraceSample         float64
	BasePath            string
	MountPrefix         string
	TrustForwarded      bool
	RateLimitPerSecond  float64
	RateLimitBurst      int
	BundleSSMParam      string
	BundleS3Bucket      string
	BundleS3Prefix      string
	BundleSigningKeyARN string
	PollInterval        time.Duration
	StaleThreshold      time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.OpsPort, "ops-port", 9000, "operational listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.EnableBundleUpdates, "enable-bundle-updates", true, "Enable refreshing documentation bundles from S3/SSM")
	fs.BoolVar(&c.EnableRateLimit, "enable-rate-limit", true, "Enable per-client request rate limiting")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.StringVar(&c.BasePath, "base-path", "/", "request path prefix the resolver serves under")
	fs.StringVar(&c.MountPrefix, "mount-prefix", "/", "router sub-path documentation bundles are mounted at")
	fs.BoolVar(&c.TrustForwarded, "trust-forwarded", false, "key rate limit buckets on the first X-Forwarded-For hop")
	fs.Float64Var(&c.RateLimitPerSecond, "rate-limit-per-second", 10, "token refill rate per client per second")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 50, "token bucket size per client")
	fs.StringVar(&c.BundleSSMParam, "bundle-ssm-param", "/app/docserve/server/content/stable/release/id", "ssm parameter name to get the release pointer from")
	fs.StringVar(&c.BundleS3Bucket, "bundle-s3-bucket", "pageforge-prod-use2-deployment-artifacts", "s3 bucket name to get documentation bundles from")
	fs.StringVar(&c.BundleS3Prefix, "bundle-s3-prefix", "apps/docserve/server/content/bundles", "s3 prefix (key) to get documentation bundles from")
	fs.StringVar(&c.BundleSigningKeyARN, "bundle-signing-key-arn", "", "KMS key ARN for release signature verification")
	fs.DurationVar(&c.PollInterval, "poll-interval", 30*time.Second, "how often to check the release pointer for a new bundle")
	fs.DurationVar(&c.StaleThreshold, "stale-threshold", 10*time.Minute, "how long without a successful poll before readiness reports stale")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.OpsPort < 1 || c.OpsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid OPS_PORT %d (must be 1..65535)", c.OpsPort))
	}
	if c.OpsPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("OPS_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log level
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Serving paths
	if c.BasePath == "" || !strings.HasPrefix(c.BasePath, "/") {
		errs = append(errs, fmt.Errorf("BASE_PATH must start with / (got %q)", c.BasePath))
	}
	if c.MountPrefix == "" || !strings.HasPrefix(c.MountPrefix, "/") {
		errs = append(errs, fmt.Errorf("MOUNT_PREFIX must start with / (got %q)", c.MountPrefix))
	}

	// Rate limiting
	if c.EnableRateLimit {
		if c.RateLimitPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_SECOND must be > 0 (got %g)", c.RateLimitPerSecond))
		}
		if c.RateLimitBurst < 1 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
		}
	}

	if c.EnableBundleUpdates {
		// Bundle source config
		if c.BundleSSMParam == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_SSM_PARAM is required"))
		}
		if c.BundleS3Bucket == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_BUCKET is required"))
		}
		if c.BundleS3Prefix == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_PREFIX is required"))
		}
		if c.PollInterval < time.Second {
			errs = append(errs, fmt.Errorf("POLL_INTERVAL must be >= 1s (got %s)", c.PollInterval))
		}
		if c.StaleThreshold < c.PollInterval {
			errs = append(errs, fmt.Errorf("STALE_THRESHOLD %s must be >= POLL_INTERVAL %s", c.StaleThreshold, c.PollInterval))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
