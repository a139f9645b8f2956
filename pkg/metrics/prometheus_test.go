package metrics

import (
	"testing"

	"TasaPull/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordRowsWritten(models.CER, "inserted", 3)
	r.RecordRowsWritten(models.CER, "inserted", 0)
	r.RecordMissingDates(models.ICL, 4)
	r.RecordMissingDates(models.ICL, 1)
	r.RecordRetry(models.CER, "fetch_range")
	r.RecordError("transient_source")
	r.RecordLatency("cycle_range", 0.2)

	if got := testutil.ToFloat64(r.rowsWritten.WithLabelValues("cer", "inserted")); got != 3 {
		t.Fatalf("rows written: got %v", got)
	}
	if got := testutil.ToFloat64(r.missingDates.WithLabelValues("icl")); got != 1 {
		t.Fatalf("missing dates gauge: got %v", got)
	}
	if got := testutil.ToFloat64(r.retries.WithLabelValues("cer", "fetch_range")); got != 1 {
		t.Fatalf("retries: got %v", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 1 {
		t.Fatalf("latency series: got %d", n)
	}
}
