// audit/repository.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const decisionIndex = "aegis-decisions"

// Repository persists decision records durably.
type Repository interface {
	Store(ctx context.Context, record DecisionRecord) error
	Query(ctx context.Context, filter Filter) ([]DecisionRecord, error)
}

type ElasticsearchRepository struct {
	esClient *elasticsearch.Client
}

// NewElasticsearchRepository creates a repository backed by the given
// Elasticsearch URL.
func NewElasticsearchRepository(esURL string) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ElasticsearchRepository{esClient: esClient}, nil
}

// Store indexes one decision record.
func (r *ElasticsearchRepository) Store(ctx context.Context, record DecisionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      decisionIndex,
		DocumentID: record.ID,
		Body:       strings.NewReader(string(data)),
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing decision record: %s", res.String())
	}

	return nil
}

// Query searches the decision trail for records matching the filter, most
// recent first.
func (r *ElasticsearchRepository) Query(ctx context.Context, filter Filter) ([]DecisionRecord, error) {
	must := []interface{}{}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		timeRange := map[string]interface{}{}
		if !filter.From.IsZero() {
			timeRange["gte"] = filter.From.Format("2006-01-02T15:04:05Z07:00")
		}
		if !filter.To.IsZero() {
			timeRange["lte"] = filter.To.Format("2006-01-02T15:04:05Z07:00")
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": timeRange},
		})
	}
	if filter.PrincipalID != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"principal_id": filter.PrincipalID},
		})
	}
	if filter.ResourceID != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"resource_id": filter.ResourceID},
		})
	}
	if filter.Outcome != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"outcome": filter.Outcome},
		})
	}

	size := filter.Limit
	if size <= 0 {
		size = 100
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"size": size,
	}

	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(decisionIndex),
		r.esClient.Search.WithBody(strings.NewReader(buf.String())),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching decision records: %s", res.String())
	}

	var rmap map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&rmap); err != nil {
		return nil, err
	}

	hits := rmap["hits"].(map[string]interface{})["hits"].([]interface{})
	records := make([]DecisionRecord, len(hits))
	for i, hit := range hits {
		source := hit.(map[string]interface{})["_source"]
		data, _ := json.Marshal(source)
		json.Unmarshal(data, &records[i])
	}

	return records, nil
}
