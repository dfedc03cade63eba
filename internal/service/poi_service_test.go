package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraxes029/Navigator/internal/domain"
)

func TestPOIServiceSortsAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		data := r.PostForm.Get("data")
		assert.True(t, strings.Contains(data, `"amenity"="hospital"`), data)
		assert.True(t, strings.Contains(data, "around:1000,0.000000,0.000000"), data)
		_, _ = w.Write([]byte(`{"elements":[
			{"lat":0.005,"lon":0},
			{"lat":0.001,"lon":0},
			{"lat":0.5,"lon":0}
		]}`))
	}))
	defer srv.Close()

	svc := NewPOIService(srv.URL, "", time.Second)
	points, err := svc.NearbyPointsOfInterest(context.Background(), domain.Coordinate{}, 1000)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, domain.NewCoordinate(0.001, 0), points[0])
	assert.Equal(t, domain.NewCoordinate(0.005, 0), points[1])
}

func TestPOIServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := NewPOIService(srv.URL, "fuel", time.Second).NearbyPointsOfInterest(context.Background(), domain.Coordinate{}, 500)
	assert.True(t, errors.Is(err, domain.ErrCollaboratorUnavailable))
}
