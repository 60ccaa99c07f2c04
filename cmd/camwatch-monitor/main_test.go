package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wachiwi/camwatch/pkg/camera"
	"github.com/wachiwi/camwatch/pkg/client"
)

func TestPollRecordsGauges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cameras", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]camera.Status{
			{Index: 0, Running: true, Sequence: 7, QueuedBatches: 3, StalledBatches: 2},
			{Index: 1, Errored: true},
		})
	})
	mux.HandleFunc("/api/recordings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]client.RecordingInfo{
			{Camera: "cam-0", Size: 100},
			{Camera: "cam-0", Size: 50},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	g, err := newGauges(provider.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.New(srv.URL, "", "")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	poll(ctx, c, g)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				continue
			}
			for _, dp := range gauge.DataPoints {
				got[m.Name] += dp.Value
			}
		}
	}

	want := map[string]int64{
		"camwatch.camera.errored":         1,
		"camwatch.camera.running":         1,
		"camwatch.camera.sequence":        7,
		"camwatch.camera.queued_batches":  3,
		"camwatch.camera.stalled_batches": 2,
		"camwatch.recordings.count":       2,
		"camwatch.recordings.size":        150,
	}

	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s: expected %d, got %d", name, v, got[name])
		}
	}
}
