// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"loan-workflow/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient holds the client used by the transcript index.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 {
		if cfg.URL == "" {
			return nil, fmt.Errorf("elasticsearch address is empty")
		}
		addresses = []string{cfg.URL}
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    3,
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es}, nil
}

// Ping fails when the cluster is unreachable or its health is red. Yellow is
// accepted so single-node clusters report ready.
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Cluster.Health(
		c.Client.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode cluster health: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("elasticsearch cluster health is red")
	}
	return nil
}
