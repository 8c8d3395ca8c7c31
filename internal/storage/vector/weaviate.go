package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Weaviate stores vectors as objects of one class with client-supplied
// vectors. Record ids are UUIDs and double as object ids.
type Weaviate struct {
	client *weaviate.Client
	class  string
}

func NewWeaviate(rawURL, class string) (*Weaviate, error) {
	cfg := weaviate.Config{Host: rawURL, Scheme: "http"}
	if rest, ok := strings.CutPrefix(rawURL, "https://"); ok {
		cfg.Scheme, cfg.Host = "https", rest
	} else if rest, ok := strings.CutPrefix(rawURL, "http://"); ok {
		cfg.Host = rest
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Weaviate{client: client, class: class}, nil
}

func (w *Weaviate) exists(ctx context.Context, id string) (bool, error) {
	return w.client.Data().Checker().WithClassName(w.class).WithID(id).Do(ctx)
}

func (w *Weaviate) Upsert(ctx context.Context, id string, vec []float32, createdAt time.Time) error {
	props := map[string]interface{}{
		"recordId":  id,
		"createdAt": strconv.FormatInt(createdAt.UnixNano(), 10),
	}
	found, err := w.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check vector %s: %w", id, err)
	}
	if found {
		err = w.client.Data().Updater().
			WithClassName(w.class).
			WithID(id).
			WithProperties(props).
			WithVector(vec).
			Do(ctx)
	} else {
		_, err = w.client.Data().Creator().
			WithClassName(w.class).
			WithID(id).
			WithProperties(props).
			WithVector(vec).
			Do(ctx)
	}
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

func (w *Weaviate) Search(ctx context.Context, vec []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	fields := []graphql.Field{
		{Name: "recordId"},
		{Name: "createdAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
	result, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	get, _ := result.Data["Get"].(map[string]interface{})
	items, _ := get[w.class].([]interface{})
	matches := make([]Match, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		m := Match{}
		m.ID, _ = obj["recordId"].(string)
		if s, ok := obj["createdAt"].(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				m.CreatedAt = time.Unix(0, n).UTC()
			}
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				// certainty = (1 + cosine) / 2
				m.Score = 2*c - 1
			}
		}
		if m.ID != "" {
			matches = append(matches, m)
		}
	}
	return Rank(matches, k), nil
}

func (w *Weaviate) Get(ctx context.Context, id string) ([]float32, error) {
	found, err := w.exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check vector %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	objs, err := w.client.Data().ObjectsGetter().
		WithClassName(w.class).
		WithID(id).
		WithVector().
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get vector %s: %w", id, err)
	}
	if len(objs) == 0 || len(objs[0].Vector) == 0 {
		return nil, ErrNotFound
	}
	return []float32(objs[0].Vector), nil
}

func (w *Weaviate) Delete(ctx context.Context, id string) error {
	found, err := w.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check vector %s: %w", id, err)
	}
	if !found {
		return nil
	}
	if err := w.client.Data().Deleter().WithClassName(w.class).WithID(id).Do(ctx); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	return nil
}
