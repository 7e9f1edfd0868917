package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
)

func preserveGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledConfig(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetup_Disabled_NoOp(t *testing.T) {
	preserveGlobals(t)

	prevTP := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.OTELConfig{Enabled: false}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown func")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("disabled setup must not replace the global tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
}

func TestSetup_Insecure_InstallsProvider(t *testing.T) {
	preserveGlobals(t)

	shutdown, err := Setup(context.Background(), enabledConfig("crawler-insecure"), "v1.2.3")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
	}

	_, span := otel.Tracer("test").Start(context.Background(), "crawl-cycle",
		trace.WithSpanKind(trace.SpanKindInternal))
	span.End()
}

func TestSetup_TLSBranch_InstallsProvider(t *testing.T) {
	preserveGlobals(t)

	cfg := enabledConfig("crawler-tls")
	cfg.Insecure = false

	shutdown, err := Setup(context.Background(), cfg, "v9.9.9")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}
}

func TestSetup_CanceledContext_StillSucceeds(t *testing.T) {
	preserveGlobals(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // exporter creation is lazy and must not fail here

	shutdown, err := Setup(ctx, enabledConfig("crawler-canceled"), "v0")
	if err != nil {
		t.Fatalf("unexpected err with canceled ctx: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetup_ExporterError_LeavesGlobalsIntact(t *testing.T) {
	preserveGlobals(t)

	orig := newTraceExporter
	defer func() { newTraceExporter = orig }()
	newTraceExporter = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("exporter down")
	}

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()

	_, err := Setup(context.Background(), enabledConfig("crawler"), "v0")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("tracer provider changed on failure")
	}
	if otel.GetTextMapPropagator() != prevProp {
		t.Fatalf("propagator changed on failure")
	}
}

func TestSetup_ResourceError_LeavesGlobalsIntact(t *testing.T) {
	preserveGlobals(t)

	orig := newServiceResource
	defer func() { newServiceResource = orig }()
	newServiceResource = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return nil, errors.New("resource build failed")
	}

	prevTP := otel.GetTracerProvider()

	_, err := Setup(context.Background(), enabledConfig("crawler"), "v0")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("tracer provider changed on failure")
	}
}

func TestSetup_ShutdownFlushes(t *testing.T) {
	preserveGlobals(t)

	shutdown, err := Setup(context.Background(), enabledConfig("crawler-shutdown"), "v1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}
