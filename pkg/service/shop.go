package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ajie-upup/ajie-comment/pkg/cache"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
	"github.com/Ajie-upup/ajie-comment/pkg/repository"
)

// 逻辑过期时间，陈旧窗口由它决定，条目本身没有物理 TTL
const shopLogicalTTL = 10 * time.Minute

// ShopService 商铺读写
// 读路径走逻辑过期策略：缓存永不物理失效，过期读返回旧值并触发后台重建
type ShopService struct {
	repo  repository.ShopRepo
	cache *cache.Client
	log   *logrus.Logger
}

func NewShopService(repo repository.ShopRepo, cacheClient *cache.Client, log *logrus.Logger) *ShopService {
	return &ShopService{repo: repo, cache: cacheClient, log: log}
}

func shopCacheKey(id int64) string {
	return fmt.Sprintf("cache:shop:%d", id)
}

// QueryByID 逻辑过期读取，冷 key 现场预热一份信封
func (s *ShopService) QueryByID(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	key := shopCacheKey(id)

	err := s.cache.QueryWithLogicalExpire(ctx, key, &shop, shopLogicalTTL, s.loader(id))
	if err == nil {
		return &shop, nil
	}
	if err != cache.ErrNotFound {
		return nil, err
	}

	// 冷 key：同步回源一次，存在则预热信封，不存在则写空值占位吸收穿透
	entity, err := s.repo.GetByID(ctx, id)
	if err == repository.ErrShopNotFound {
		if nullErr := s.cache.SetNull(ctx, key); nullErr != nil {
			s.log.Warnf("[Shop] write null placeholder for shop %d failed: %v", id, nullErr)
		}
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if setErr := s.cache.SetLogical(ctx, key, entity, shopLogicalTTL); setErr != nil {
		s.log.Warnf("[Shop] warm cache for shop %d failed: %v", id, setErr)
	}
	return entity, nil
}

func (s *ShopService) loader(id int64) cache.Loader {
	return func(ctx context.Context) (interface{}, error) {
		shop, err := s.repo.GetByID(ctx, id)
		if err == repository.ErrShopNotFound {
			return nil, cache.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return shop, nil
	}
}

// SaveToCache 预热：把商铺以逻辑过期信封写入缓存
func (s *ShopService) SaveToCache(ctx context.Context, id int64, ttl time.Duration) error {
	shop, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.cache.SetLogical(ctx, shopCacheKey(id), shop, ttl)
}

// Update 先更新数据库再删缓存，由下一次读取负责重建
func (s *ShopService) Update(ctx context.Context, shop *model.Shop) error {
	if err := s.repo.Update(ctx, shop); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, shopCacheKey(shop.ID)); err != nil {
		s.log.Warnf("[Shop] delete cache for shop %d failed: %v", shop.ID, err)
	}
	return nil
}
