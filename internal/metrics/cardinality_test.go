package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/stats/owner1", "/stats/*"},
		{"/stats/owner1/with/more/segments", "/stats/*"},
		{"/stats", "/stats"},
		{"/stats?query=param", "/stats"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := sanitizePathLabel(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	// Record requests with high cardinality paths
	m.RecordHTTPRequest(context.Background(), "GET", "/owner1/file1", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/owner1/file2", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/owner2/file1", http.StatusOK, time.Millisecond, 100)

	// Check that we have collapsed paths
	// We expect /owner1/* and /owner2/*

	// Verify /owner1/* count is 2
	countOwner1 := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/owner1/*", "OK"))
	assert.Equal(t, 2.0, countOwner1)

	// Verify /owner2/* count is 1
	countOwner2 := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/owner2/*", "OK"))
	assert.Equal(t, 1.0, countOwner2)
}

func TestRecordFileOperation_DisableOwnerLabel(t *testing.T) {
	// Create metrics with owner label disabled
	reg := prometheus.NewRegistry()
	cfg := Config{EnableOwnerLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordFileOperation(context.Background(), "write", "identity-1", time.Millisecond)
	m.RecordFileOperation(context.Background(), "write", "identity-2", time.Millisecond)

	// Should align to owner="*"
	count := testutil.ToFloat64(m.fileOperationsTotal.WithLabelValues("write", "*"))
	assert.Equal(t, 2.0, count)

	// Note: checking the aggregate "*" is sufficient to prove the logic path was taken;
	// per-owner labels are not tracked when the knob is disabled.
}

func TestRecordFileOperationError_DisableOwnerLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{EnableOwnerLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordFileOperationError(context.Background(), "read", "identity-1", "ErrNotFound")
	m.RecordFileOperationError(context.Background(), "read", "identity-2", "ErrNotFound")

	count := testutil.ToFloat64(m.fileOperationErrors.WithLabelValues("read", "*", "ErrNotFound"))
	assert.Equal(t, 2.0, count)
}
