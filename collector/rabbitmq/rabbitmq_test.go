package rabbitmq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/models"
)

func clientFor(t *testing.T, server *httptest.Server, cfg config.RabbitMQConfig) *Client {
	t.Helper()

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg.Host = parsed.Hostname()
	cfg.Port = port
	return New(cfg)
}

func TestFetchQueues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "monitor", user)
		require.Equal(t, "s3cret", pass)
		require.Equal(t, "/api/queues", r.URL.Path)
		require.Equal(t, "name,messages", r.URL.Query().Get("columns"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"orders","messages":120},{"name":"emails","messages":0}]`))
	}))
	defer server.Close()

	client := clientFor(t, server, config.RabbitMQConfig{Username: "monitor", Password: "s3cret"})

	queues, err := client.FetchQueues(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.QueueObservation{
		{Name: "orders", Messages: 120},
		{Name: "emails", Messages: 0},
	}, queues)
}

func TestFetchQueuesVhostScoped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/queues/prod", r.URL.Path)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := clientFor(t, server, config.RabbitMQConfig{Vhost: "prod"})

	_, err := client.FetchQueues(context.Background())
	require.NoError(t, err)
}

func TestAuthRejectedIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := clientFor(t, server, config.RabbitMQConfig{})

	_, err := client.FetchQueues(context.Background())
	require.ErrorIs(t, err, models.ErrConnection)
}

func TestUnreachableBrokerIsConnectionError(t *testing.T) {
	client := New(config.RabbitMQConfig{Host: "127.0.0.1", Port: 1, TimeoutSeconds: 1})

	_, err := client.FetchQueues(context.Background())
	require.ErrorIs(t, err, models.ErrConnection)
}

func TestMalformedPayloadIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := clientFor(t, server, config.RabbitMQConfig{})

	_, err := client.FetchQueues(context.Background())
	require.ErrorIs(t, err, models.ErrConnection)
}
