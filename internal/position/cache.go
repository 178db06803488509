package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Snapshot 为 (agent, venue, asset) 的本地仓位镜像。
// 仅作为提示使用，任何分支决策都必须以平台实时查询为准。
type Snapshot struct {
	Agent      string    `json:"agent"`
	Venue      string    `json:"venue"`
	Asset      string    `json:"asset"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   float64   `json:"leverage"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Cache 为仓位镜像存储的抽象。
type Cache interface {
	Get(ctx context.Context, agent, venueName, asset string) (*Snapshot, error)
	Put(ctx context.Context, snapshot Snapshot) error
	Delete(ctx context.Context, agent, venueName, asset string) error
}

func cacheKey(agent, venueName, asset string) string {
	return fmt.Sprintf("%s:%s:%s",
		strings.TrimSpace(agent),
		strings.ToLower(strings.TrimSpace(venueName)),
		strings.ToUpper(strings.TrimSpace(asset)),
	)
}

// MemoryCache 为进程内仓位镜像，默认实现。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Snapshot
}

// NewMemoryCache 创建内存镜像。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Snapshot)}
}

func (c *MemoryCache) Get(ctx context.Context, agent, venueName, asset string) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.entries[cacheKey(agent, venueName, asset)]
	if !ok {
		return nil, nil
	}
	out := snapshot
	return &out, nil
}

func (c *MemoryCache) Put(ctx context.Context, snapshot Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(snapshot.Agent, snapshot.Venue, snapshot.Asset)] = snapshot
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, agent, venueName, asset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, cacheKey(agent, venueName, asset))
	return nil
}

var _ Cache = (*MemoryCache)(nil)
