package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080, got %d", c.HTTPPort)
	}
	if c.OpsPort != 9000 {
		t.Errorf("OpsPort: want 9000, got %d", c.OpsPort)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true")
	}
	if c.EnablePyroscope {
		t.Error("EnablePyroscope: want false")
	}
	if c.EnableTracing {
		t.Error("EnableTracing: want false")
	}
	if !c.EnableBundleUpdates {
		t.Error("EnableBundleUpdates: want true")
	}
	if !c.EnableRateLimit {
		t.Error("EnableRateLimit: want true")
	}
	if c.BasePath != "/" {
		t.Errorf("BasePath: want %q, got %q", "/", c.BasePath)
	}
	if c.MountPrefix != "/" {
		t.Errorf("MountPrefix: want %q, got %q", "/", c.MountPrefix)
	}
	if c.TrustForwarded {
		t.Error("TrustForwarded: want false")
	}
	if c.RateLimitPerSecond != 10 {
		t.Errorf("RateLimitPerSecond: want 10, got %g", c.RateLimitPerSecond)
	}
	if c.RateLimitBurst != 50 {
		t.Errorf("RateLimitBurst: want 50, got %d", c.RateLimitBurst)
	}
	if c.PollInterval != 30*time.Second {
		t.Errorf("PollInterval: want 30s, got %s", c.PollInterval)
	}
	if c.StaleThreshold != 10*time.Minute {
		t.Errorf("StaleThreshold: want 10m, got %s", c.StaleThreshold)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-log-json=false",
		"-log-level=debug",
		"-http-port=9090",
		"-ops-port=9100",
		"-enable-pprof=false",
		"-enable-pyroscope=true",
		"-enable-tracing=true",
		"-trace-sample=0.5",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-otlp-endpoint=otel:4317",
		"-base-path=/docs",
		"-mount-prefix=/docs",
		"-trust-forwarded=true",
		"-rate-limit-per-second=2.5",
		"-rate-limit-burst=8",
		"-bundle-ssm-param=/custom/param",
		"-bundle-s3-bucket=my-bucket",
		"-bundle-s3-prefix=my/prefix",
		"-bundle-signing-key-arn=arn:aws:kms:us-east-2:1:key/k",
		"-poll-interval=10s",
		"-stale-threshold=5m",
	})

	if c.LogJSON != false {
		t.Error("LogJSON: want false")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090, got %d", c.HTTPPort)
	}
	if c.OpsPort != 9100 {
		t.Errorf("OpsPort: want 9100, got %d", c.OpsPort)
	}
	if c.TraceSample != 0.5 {
		t.Errorf("TraceSample: want 0.5, got %f", c.TraceSample)
	}
	if c.PyroServer != "https://pyro:4040" {
		t.Errorf("PyroServer: want %q, got %q", "https://pyro:4040", c.PyroServer)
	}
	if c.PyroTenantID != "test-tenant" {
		t.Errorf("PyroTenantID: want %q, got %q", "test-tenant", c.PyroTenantID)
	}
	if c.OTLPEndpoint != "otel:4317" {
		t.Errorf("OTLPEndpoint: want %q, got %q", "otel:4317", c.OTLPEndpoint)
	}
	if c.BasePath != "/docs" {
		t.Errorf("BasePath: want %q, got %q", "/docs", c.BasePath)
	}
	if c.MountPrefix != "/docs" {
		t.Errorf("MountPrefix: want %q, got %q", "/docs", c.MountPrefix)
	}
	if !c.TrustForwarded {
		t.Error("TrustForwarded: want true")
	}
	if c.RateLimitPerSecond != 2.5 {
		t.Errorf("RateLimitPerSecond: want 2.5, got %g", c.RateLimitPerSecond)
	}
	if c.RateLimitBurst != 8 {
		t.Errorf("RateLimitBurst: want 8, got %d", c.RateLimitBurst)
	}
	if c.BundleSSMParam != "/custom/param" {
		t.Errorf("BundleSSMParam: want %q, got %q", "/custom/param", c.BundleSSMParam)
	}
	if c.BundleS3Bucket != "my-bucket" {
		t.Errorf("BundleS3Bucket: want %q, got %q", "my-bucket", c.BundleS3Bucket)
	}
	if c.BundleS3Prefix != "my/prefix" {
		t.Errorf("BundleS3Prefix: want %q, got %q", "my/prefix", c.BundleS3Prefix)
	}
	if c.BundleSigningKeyARN != "arn:aws:kms:us-east-2:1:key/k" {
		t.Errorf("BundleSigningKeyARN: got %q", c.BundleSigningKeyARN)
	}
	if c.PollInterval != 10*time.Second {
		t.Errorf("PollInterval: want 10s, got %s", c.PollInterval)
	}
	if c.StaleThreshold != 5*time.Minute {
		t.Errorf("StaleThreshold: want 5m, got %s", c.StaleThreshold)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_JSON", "false")
	t.Setenv(pfx+"LOG_LEVEL", "debug")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"OPS_PORT", "9100")
	t.Setenv(pfx+"ENABLE_PPROF", "false")
	t.Setenv(pfx+"ENABLE_TRACING", "true")
	t.Setenv(pfx+"TRACE_SAMPLE", "0.25")
	t.Setenv(pfx+"OTLP_ENDPOINT", "otel:4317")
	t.Setenv(pfx+"BASE_PATH", "/docs")
	t.Setenv(pfx+"POLL_INTERVAL", "45s")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.LogJSON != false {
		t.Error("LogJSON: want false from env")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if c.OpsPort != 9100 {
		t.Errorf("OpsPort: want 9100, got %d", c.OpsPort)
	}
	if c.EnablePprof != false {
		t.Error("EnablePprof: want false from env")
	}
	if c.EnableTracing != true {
		t.Error("EnableTracing: want true from env")
	}
	if c.TraceSample != 0.25 {
		t.Errorf("TraceSample: want 0.25, got %f", c.TraceSample)
	}
	if c.OTLPEndpoint != "otel:4317" {
		t.Errorf("OTLPEndpoint: want %q, got %q", "otel:4317", c.OTLPEndpoint)
	}
	if c.BasePath != "/docs" {
		t.Errorf("BasePath: want %q, got %q", "/docs", c.BasePath)
	}
	if c.PollInterval != 45*time.Second {
		t.Errorf("PollInterval: want 45s, got %s", c.PollInterval)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")
	t.Setenv(pfx+"ENABLE_PPROF", "false")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090", "-log-level=debug", "-enable-pprof=true"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var overrideMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		overrideMessages = append(overrideMessages, fmt.Sprintf(format, args...))
	})

	// CLI wins
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090 (cli), got %d", c.HTTPPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q (cli), got %q", "debug", c.LogLevel)
	}
	if c.EnablePprof != true {
		t.Error("EnablePprof: want true (cli)")
	}

	// Should have logged override messages for all three
	if len(overrideMessages) != 3 {
		t.Errorf("expected 3 override messages, got %d: %v", len(overrideMessages), overrideMessages)
	}
	for _, msg := range overrideMessages {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var logMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logMessages = append(logMessages, fmt.Sprintf(format, args...))
	})

	// Should keep default, not crash
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080 (default), got %d", c.HTTPPort)
	}
	// Should have logged the error
	if len(logMessages) != 1 {
		t.Fatalf("expected 1 log message, got %d: %v", len(logMessages), logMessages)
	}
	if !strings.Contains(logMessages[0], "ignoring invalid env") {
		t.Errorf("unexpected log message: %s", logMessages[0])
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-ops-port=70000",
		"-log-level=nope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-base-path=docs",
		"-rate-limit-per-second=0",
		"-rate-limit-burst=0",
		"-bundle-ssm-param=",
		"-poll-interval=100ms",
	})
	err := Validate(c)
	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid OPS_PORT")
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "PYRO_TENANT required")
	wantErrContains(t, err, "OTLP_ENDPOINT required")
	wantErrContains(t, err, "BASE_PATH must start with /")
	wantErrContains(t, err, "RATE_LIMIT_PER_SECOND must be > 0")
	wantErrContains(t, err, "RATE_LIMIT_BURST must be >= 1")
	wantErrContains(t, err, "BUNDLE_SSM_PARAM is required")
	wantErrContains(t, err, "POLL_INTERVAL must be >= 1s")
}

func TestValidate_PortConflict(t *testing.T) {
	c := newTestConfig(t, []string{"-http-port=9000", "-ops-port=9000"})
	wantErrContains(t, Validate(c), "must differ")
}

func TestValidate_StaleThresholdBelowPoll(t *testing.T) {
	c := newTestConfig(t, []string{"-poll-interval=1m", "-stale-threshold=30s"})
	wantErrContains(t, Validate(c), "STALE_THRESHOLD")
}

func TestValidate_BundleUpdatesDisabledSkipsSourceChecks(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-bundle-updates=false",
		"-bundle-ssm-param=",
		"-bundle-s3-bucket=",
		"-poll-interval=0s",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}
