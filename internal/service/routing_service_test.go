package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraxes029/Navigator/internal/domain"
)

const osrmTwoRoutes = `{
  "code": "Ok",
  "routes": [
    {"distance": 5200.5, "duration": 610, "geometry": {"coordinates": [[76.88, 43.23], [76.89, 43.24]]}},
    {"distance": 4100.0, "duration": 700, "geometry": {"coordinates": [[76.88, 43.23], [76.885, 43.235], [76.89, 43.24]]}}
  ]
}`

func TestRoutingServiceParsesRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route/v1/driving/76.880000,43.230000;76.890000,43.240000", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("alternatives"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(osrmTwoRoutes))
	}))
	defer srv.Close()

	svc := NewRoutingService(srv.URL, time.Second)
	options, err := svc.Route(context.Background(),
		domain.NewCoordinate(43.23, 76.88), domain.NewCoordinate(43.24, 76.89), "", true)
	require.NoError(t, err)
	require.Len(t, options, 2)

	assert.Equal(t, 5200.5, options[0].DistanceMeters)
	assert.Equal(t, domain.NewCoordinate(43.23, 76.88), options[0].Geometry[0])
	assert.Len(t, options[1].Geometry, 3)

	eco, ok := domain.SelectRoute(options, true)
	require.True(t, ok)
	assert.Equal(t, 4100.0, eco.DistanceMeters)
}

func TestRoutingServiceNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewRoutingService(srv.URL, time.Second).Route(context.Background(),
		domain.Coordinate{}, domain.NewCoordinate(1, 1), domain.ProfileDriving, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCollaboratorUnavailable))
}

func TestRoutingServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRoutingService(srv.URL, time.Second).Route(context.Background(),
		domain.Coordinate{}, domain.NewCoordinate(1, 1), domain.ProfileDriving, false)
	assert.True(t, errors.Is(err, domain.ErrCollaboratorUnavailable))
}
