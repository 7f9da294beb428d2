package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "modify_sample_set", true, 10*time.Millisecond)
	rec.Observe(ctx, "modify_sample_set", true, 20*time.Millisecond)
	rec.Observe(ctx, "modify_sample_set", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // unnamed operations are dropped

	snap := rec.Snapshot()
	if got := snap.DurationsMS["modify_sample_set"]; got != 35 {
		t.Fatalf("expected 35ms total, got %v", got)
	}
	results := snap.Results["modify_sample_set"]
	if results["success"] != 2 || results["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", results)
	}
	if len(snap.DurationsMS) != 1 {
		t.Fatalf("unnamed operation must not be recorded: %+v", snap.DurationsMS)
	}
	if !strings.HasPrefix(rec.Name(), "sampling_service_metrics_") {
		t.Fatalf("expected generated export name, got %s", rec.Name())
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "advance")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "certify")
	span.End(errors.New("gate down"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Operation != "advance" || entries[0].Status != "success" {
		t.Fatalf("unexpected first span: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "gate down" {
		t.Fatalf("unexpected second span: %+v", entries[1])
	}

	dec := json.NewDecoder(&buf)
	var decoded JSONTraceEntry
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if decoded.Operation != "advance" {
		t.Fatalf("unexpected encoded span: %+v", decoded)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Observe(context.Background(), "advance", true, 50*time.Millisecond)
	rec.Observe(context.Background(), "advance", false, 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 metric families, got %d", len(families))
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["samplecore_operation_duration_seconds"] || !names["samplecore_operation_results_total"] {
		t.Fatalf("unexpected family names: %v", names)
	}

	// The same registry rejects a second recorder.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestServiceObserveFeedsMetricsAndTraces(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	f := newFixture(WithMetrics(rec), WithTracer(tracer))

	if _, err := f.service.ModifySampleSet(context.Background(), ModifyInput{
		TestIDs:    []string{"e1"},
		SampledIDs: []string{"e2"},
	}); err != nil {
		t.Fatalf("modify: %v", err)
	}

	snap := rec.Snapshot()
	if snap.Results["modify_sample_set"]["success"] != 1 {
		t.Fatalf("expected one observed success, got %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "modify_sample_set" {
		t.Fatalf("expected one modify span, got %+v", entries)
	}
}
