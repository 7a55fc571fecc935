package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/core/security"
	domainnotify "almacen/internal/domain/notify"
)

func TestWebhookSink_PostsJSON(t *testing.T) {
	var got domainnotify.Notification
	var eventHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		eventHeader = r.Header.Get("X-Event-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, srv.Client())
	err := sink.Send(context.Background(), domainnotify.Notification{
		TargetRoles: []security.Role{security.RolePurchasing},
		EventType:   domainnotify.EventOrderCreated,
		Title:       "Orden creada",
		Body:        "OC-140326-0930-01",
	})

	require.NoError(t, err)
	assert.Equal(t, "orden.creada", eventHeader)
	assert.Equal(t, domainnotify.EventOrderCreated, got.EventType)
	assert.Equal(t, []security.Role{security.RolePurchasing}, got.TargetRoles)
	assert.Equal(t, "OC-140326-0930-01", got.Body)
}

func TestWebhookSink_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, nil).Send(context.Background(), domainnotify.Notification{
		TargetUserID: "u1",
		EventType:    domainnotify.EventRequestApproved,
	})

	assert.ErrorContains(t, err, "502")
}
