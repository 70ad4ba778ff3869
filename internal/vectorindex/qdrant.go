package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant implements Index on top of a Qdrant collection. The collection is
// created on first use with cosine distance and the configured dimension
// (384 by default, matching common sentence-embedding models — see
// llmclient.Backend.Dimension).
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to a Qdrant instance and ensures the target collection
// exists with the given vector dimension.
func NewQdrant(ctx context.Context, host string, port int, collection string, dimension int, apiKey string) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	q := &Qdrant{client: client, collection: collection}
	if err := q.ensureCollection(ctx, dimension); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	return nil
}

// Upsert stores vector and metadata under a deterministic point ID derived
// from id, since Qdrant point IDs must be UUIDs or unsigned integers.
func (q *Qdrant) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	payload["external_id"] = qdrant.NewValueString(id)
	for k, v := range metadata {
		payload[k] = toQdrantValue(v)
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(pointUUID(id)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Delete removes the point associated with id.
func (q *Qdrant) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(pointUUID(id))}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

// Query performs a cosine nearest-neighbour search.
func (q *Qdrant) Query(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Match, error) {
	limit := uint64(k)
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			conditions = append(conditions, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
		}
		req.Filter = &qdrant.Filter{Must: conditions}
	}
	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		meta := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			meta[k] = fromQdrantValue(v)
		}
		id, _ := meta["external_id"].(string)
		matches = append(matches, Match{ID: id, Score: float64(p.Score), Metadata: meta})
	}
	return matches, nil
}

// pointUUID derives a stable UUID from an arbitrary external ID so the
// engine's own string IDs (goal/pathway/tool names) can be used as Qdrant
// point identifiers.
func pointUUID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func toQdrantValue(v any) *qdrant.Value {
	switch t := v.(type) {
	case string:
		return qdrant.NewValueString(t)
	case bool:
		return qdrant.NewValueBool(t)
	case int:
		return qdrant.NewValueInt(int64(t))
	case int64:
		return qdrant.NewValueInt(t)
	case float64:
		return qdrant.NewValueDouble(t)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", t))
	}
}

func fromQdrantValue(v *qdrant.Value) any {
	switch k := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	default:
		return nil
	}
}
