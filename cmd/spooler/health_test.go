package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
)

func TestHealthRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		check  func(context.Context) error
		status int
	}{
		{name: "store reachable", check: func(context.Context) error { return nil }, status: http.StatusOK},
		{name: "no check configured", check: nil, status: http.StatusOK},
		{name: "store down", check: func(context.Context) error { return errors.New("connection refused") }, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := healthRouter(tt.check, logger.Discard())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	t.Run("unknown path", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		healthRouter(nil, logger.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
