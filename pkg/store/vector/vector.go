package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// VectorDBIndex implements the store.VectorIndex interface on Qdrant. One
// collection holds every library's rows; the library lives in the payload
// and every query carries a mandatory library condition.
type VectorDBIndex struct {
	client     *qdrant.Client
	collection string
	dimensions uint64
}

type NewVectorDBIndexParams struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions uint64
}

// NewVectorDBIndex connects to Qdrant and ensures the collection exists.
func NewVectorDBIndex(ctx context.Context, params NewVectorDBIndexParams) (*VectorDBIndex, error) {
	if params.Host == "" {
		params.Host = "localhost"
	}
	if params.Port == 0 {
		params.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   params.Host,
		Port:   params.Port,
		APIKey: params.APIKey,
		UseTLS: params.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	index := &VectorDBIndex{
		client:     client,
		collection: params.Collection,
		dimensions: params.Dimensions,
	}
	if err := index.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func (v *VectorDBIndex) ensureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", v.collection, err)
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     v.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", v.collection, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (v *VectorDBIndex) Close() error {
	return v.client.Close()
}

// pointID derives the deterministic point id for a row. Qdrant point ids
// must be UUIDs, while rows are keyed by (library, id); hashing the pair
// keeps upserts idempotent and lets deletes address points without a read.
func pointID(library, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mimo://"+library+"/"+id)).String()
}
