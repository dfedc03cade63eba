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

func TestTrafficServiceParsesFlowSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/traffic/services/4/flowSegmentData/absolute/10/json", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "43.238900,76.889700", r.URL.Query().Get("point"))
		_, _ = w.Write([]byte(`{"flowSegmentData":{"currentSpeed":24,"freeFlowSpeed":60,"confidence":0.9}}`))
	}))
	defer srv.Close()

	svc := NewTrafficService("secret", srv.URL, time.Second)
	obs, err := svc.Telemetry(context.Background(), domain.NewCoordinate(43.2389, 76.8897))
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, 24.0, obs.CurrentSpeed)
	assert.Equal(t, 60.0, obs.FreeFlowSpeed)
}

func TestTrafficServiceWithoutKeyIsAbsent(t *testing.T) {
	svc := NewTrafficService("", "http://127.0.0.1:1", time.Second)
	obs, err := svc.Telemetry(context.Background(), domain.Coordinate{})
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestTrafficServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad-json" {
			_, _ = w.Write([]byte(`{"flowSegmentData":`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewTrafficService("denied", srv.URL, time.Second).Telemetry(context.Background(), domain.Coordinate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCollaboratorUnavailable))

	_, err = NewTrafficService("bad-json", srv.URL, time.Second).Telemetry(context.Background(), domain.Coordinate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidObservation))
}

func TestTrafficServiceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewTrafficService("slow", srv.URL, 20*time.Millisecond).Telemetry(context.Background(), domain.Coordinate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCollaboratorUnavailable))
}
