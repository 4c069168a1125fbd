// Package rabbitmq collects queue depths from the RabbitMQ management API.
package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	cfg    config.RabbitMQConfig
	client *http.Client
}

func New(cfg config.RabbitMQConfig) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	transport := &http.Transport{}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) endpoint() string {
	scheme := "http"
	if c.cfg.TLS {
		scheme = "https"
	}

	vhost := ""
	if c.cfg.Vhost != "" {
		vhost = "/" + url.PathEscape(c.cfg.Vhost)
	}

	return fmt.Sprintf("%s://%s:%d/api/queues%s?columns=name,messages", scheme, c.cfg.Host, c.cfg.Port, vhost)
}

// FetchQueues returns one observation per queue visible on the management
// API. Transport failures, auth rejections and malformed payloads all wrap
// models.ErrConnection.
func (c *Client) FetchQueues(ctx context.Context) ([]models.QueueObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnection, err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: management API returned %s", models.ErrConnection, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnection, err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: management API returned invalid JSON", models.ErrConnection)
	}

	var observations []models.QueueObservation
	gjson.ParseBytes(body).ForEach(func(_, queue gjson.Result) bool {
		name := queue.Get("name").String()
		if name == "" {
			return true
		}
		observations = append(observations, models.QueueObservation{
			Name:     name,
			Messages: queue.Get("messages").Int(),
		})
		return true
	})

	log.Debug().Int("queues", len(observations)).Msg("Fetched queue snapshot")

	return observations, nil
}
