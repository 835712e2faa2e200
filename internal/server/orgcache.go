package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/store"
)

const orgCacheTTL = 5 * time.Minute

// OrgResolver looks up organizations with a short redis cache in front of
// the store. Every ingest request resolves a tenant, so this is the hottest
// read path. Redis is optional; without it every lookup hits the store.
type OrgResolver struct {
	store store.Store
	redis *redis.Client
}

func NewOrgResolver(st store.Store, rdb *redis.Client) *OrgResolver {
	return &OrgResolver{store: st, redis: rdb}
}

func (o *OrgResolver) ByKey(ctx context.Context, publicKey string) (*domain.Organization, error) {
	if org := o.cached(ctx, "org:key:"+publicKey); org != nil {
		return org, nil
	}
	org, err := o.store.OrganizationByKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	o.cache(ctx, "org:key:"+publicKey, org)
	return org, nil
}

func (o *OrgResolver) ByID(ctx context.Context, id string) (*domain.Organization, error) {
	if org := o.cached(ctx, "org:id:"+id); org != nil {
		return org, nil
	}
	org, err := o.store.OrganizationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.cache(ctx, "org:id:"+id, org)
	return org, nil
}

func (o *OrgResolver) cached(ctx context.Context, key string) *domain.Organization {
	if o.redis == nil {
		return nil
	}
	raw, err := o.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}
	var org domain.Organization
	if err := json.Unmarshal([]byte(raw), &org); err != nil {
		return nil
	}
	return &org
}

func (o *OrgResolver) cache(ctx context.Context, key string, org *domain.Organization) {
	if o.redis == nil {
		return
	}
	if raw, err := json.Marshal(org); err == nil {
		o.redis.Set(ctx, key, raw, orgCacheTTL)
	}
}
