package syncsdk

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	endpointCacheSize = 256
	endpointCacheTTL  = 30 * time.Minute
)

// EndpointResolver looks up the database server of a knowledge base and
// caches the answer per token and guid.
type EndpointResolver struct {
	kb    *KnowledgeBaseAPI
	cache *expirable.LRU[string, string]
}

func NewEndpointResolver(sdk *SDK) *EndpointResolver {
	return &EndpointResolver{
		kb:    sdk.KB,
		cache: expirable.NewLRU[string, string](endpointCacheSize, nil, endpointCacheTTL),
	}
}

func (r *EndpointResolver) LookupEndpoint(ctx context.Context, token, kbGUID string) (string, error) {
	key := token + "|" + kbGUID
	if endpoint, ok := r.cache.Get(key); ok {
		return endpoint, nil
	}

	endpoint, err := r.kb.Endpoint(ctx, token, kbGUID)
	if err != nil {
		return "", err
	}
	r.cache.Add(key, endpoint)
	return endpoint, nil
}

// Forget drops every cached endpoint, e.g. after the server moved a knowledge base.
func (r *EndpointResolver) Forget() {
	r.cache.Purge()
}
