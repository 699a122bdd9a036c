// pool.go

package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// Redis键名
const (
	// ServersKey 服务器注册表(HASH: id -> JSON)
	ServersKey = "game_servers"

	// HealthKeyPrefix 服务器健康键前缀，带TTL，过期即视为失联
	HealthKeyPrefix = "game_server:"
	healthKeySuffix = ":health"

	// ActiveGamesPrefix 服务器承载对局集合前缀(SET: match_id)
	ActiveGamesPrefix = "active_games:"
)

var (
	// ErrPoolUnavailable 没有可用的游戏服务器
	ErrPoolUnavailable = errors.New("没有可用的游戏服务器")
	// ErrServerNotFound 服务器未注册
	ErrServerNotFound = errors.New("服务器未注册")
)

// ServerInfo 游戏服务器注册信息
type ServerInfo struct {
	ID           string    `json:"id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Region       string    `json:"region,omitempty"`
	MaxGames     int       `json:"max_games"`
	RegisteredAt time.Time `json:"registered_at"`
}

// HeartbeatMetrics 心跳附带的负载指标
type HeartbeatMetrics struct {
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
	ActiveGames   int     `json:"active_games,omitempty"`
}

// heartbeatRecord 健康键中存储的心跳记录
type heartbeatRecord struct {
	Timestamp int64 `json:"timestamp"`
	HeartbeatMetrics
}

// ServerStatus 服务器运行时状态
type ServerStatus struct {
	ServerInfo
	ActiveGames int               `json:"active_games"`
	Healthy     bool              `json:"healthy"`
	Metrics     *HeartbeatMetrics `json:"metrics,omitempty"`
}

// RegionStats 单个区域的服务器统计
type RegionStats struct {
	Servers     int `json:"servers"`
	Healthy     int `json:"healthy"`
	ActiveGames int `json:"active_games"`
	Capacity    int `json:"capacity"`
}

// PoolStats 服务器池统计
type PoolStats struct {
	TotalServers   int                    `json:"total_servers"`
	HealthyServers int                    `json:"healthy_servers"`
	ActiveGames    int                    `json:"active_games"`
	TotalCapacity  int                    `json:"total_capacity"`
	Utilization    float64                `json:"utilization"`
	Regions        map[string]RegionStats `json:"regions"`
}

// Pool 游戏服务器池
// 注册表与健康状态都存Redis，多个匹配服务实例看到同一份视图。
type Pool struct {
	client       *redis.Client
	ctx          context.Context
	heartbeatTTL time.Duration
}

// NewPool 创建服务器池
func NewPool(cfg *config.Config) *Pool {
	return &Pool{
		client:       db.RedisClient,
		ctx:          context.Background(),
		heartbeatTTL: time.Duration(cfg.Pool.HeartbeatTTL) * time.Second,
	}
}

// healthKey 服务器健康键
func healthKey(serverID string) string {
	return HealthKeyPrefix + serverID + healthKeySuffix
}

// activeKey 服务器承载对局集合键
func activeKey(serverID string) string {
	return ActiveGamesPrefix + serverID
}

// Register 注册服务器并写入首个健康心跳
// 重复注册会覆盖旧信息但保留原注册时间，负载均衡的平分规则依赖它。
func (p *Pool) Register(info *ServerInfo) error {
	if existing, err := p.getServer(info.ID); err == nil {
		info.RegisteredAt = existing.RegisteredAt
	} else if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("序列化服务器信息失败: %w", err)
	}

	if err := p.client.HSet(p.ctx, ServersKey, info.ID, data).Err(); err != nil {
		return fmt.Errorf("写入服务器注册表失败: %w", err)
	}
	return p.writeHeartbeat(info.ID, nil)
}

// Unregister 注销服务器，清除健康键与承载记录
func (p *Pool) Unregister(serverID string) error {
	if err := p.client.HDel(p.ctx, ServersKey, serverID).Err(); err != nil {
		return err
	}
	p.client.Del(p.ctx, healthKey(serverID), activeKey(serverID))
	return nil
}

// Heartbeat 刷新服务器健康键，metrics可为nil
func (p *Pool) Heartbeat(serverID string, metrics *HeartbeatMetrics) error {
	exists, err := p.client.HExists(p.ctx, ServersKey, serverID).Result()
	if err != nil {
		return err
	}
	if !exists {
		return ErrServerNotFound
	}
	return p.writeHeartbeat(serverID, metrics)
}

// writeHeartbeat 带TTL写入心跳记录
func (p *Pool) writeHeartbeat(serverID string, metrics *HeartbeatMetrics) error {
	record := heartbeatRecord{Timestamp: time.Now().Unix()}
	if metrics != nil {
		record.HeartbeatMetrics = *metrics
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return p.client.Set(p.ctx, healthKey(serverID), data, p.heartbeatTTL).Err()
}

// IsHealthy 检查服务器健康键是否存在
func (p *Pool) IsHealthy(serverID string) bool {
	n, err := p.client.Exists(p.ctx, healthKey(serverID)).Result()
	return err == nil && n > 0
}

// ActiveCount 查询服务器当前承载的对局数
func (p *Pool) ActiveCount(serverID string) (int, error) {
	n, err := p.client.SCard(p.ctx, activeKey(serverID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Assign 将对局记入服务器承载集合
func (p *Pool) Assign(serverID, matchID string) error {
	return p.client.SAdd(p.ctx, activeKey(serverID), matchID).Err()
}

// Release 将对局移出服务器承载集合
func (p *Pool) Release(serverID, matchID string) error {
	return p.client.SRem(p.ctx, activeKey(serverID), matchID).Err()
}

// List 列出所有已注册服务器及其运行时状态
func (p *Pool) List() ([]ServerStatus, error) {
	entries, err := p.client.HGetAll(p.ctx, ServersKey).Result()
	if err != nil {
		return nil, err
	}

	statuses := make([]ServerStatus, 0, len(entries))
	for id, raw := range entries {
		var info ServerInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			log.Printf("服务器 %s 的注册信息损坏: %v", id, err)
			continue
		}

		active, err := p.ActiveCount(id)
		if err != nil {
			return nil, err
		}

		status := ServerStatus{
			ServerInfo:  info,
			ActiveGames: active,
		}
		if raw, err := p.client.Get(p.ctx, healthKey(id)).Result(); err == nil {
			status.Healthy = true
			var hb heartbeatRecord
			if json.Unmarshal([]byte(raw), &hb) == nil {
				status.Metrics = &hb.HeartbeatMetrics
			}
		}
		statuses = append(statuses, status)
	}

	// 按注册时间排序，保证遍历顺序稳定
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].RegisteredAt.Equal(statuses[j].RegisteredAt) {
			return statuses[i].ID < statuses[j].ID
		}
		return statuses[i].RegisteredAt.Before(statuses[j].RegisteredAt)
	})
	return statuses, nil
}

// SelectBestServer 选择负载最低的健康服务器
// region非空时只考虑该区域；候选至少要有minFree个空位(下限1)，
// 容量为零的服务器永不入选。承载数相同的取注册最早的一台。
func (p *Pool) SelectBestServer(region string, minFree int) (*ServerStatus, error) {
	if minFree < 1 {
		minFree = 1
	}

	statuses, err := p.List()
	if err != nil {
		return nil, err
	}

	var best *ServerStatus
	for i := range statuses {
		s := &statuses[i]
		if !s.Healthy {
			continue
		}
		if region != "" && s.Region != region {
			continue
		}
		if s.MaxGames-s.ActiveGames < minFree {
			continue
		}
		if best == nil || s.ActiveGames < best.ActiveGames {
			best = s
		}
	}

	if best == nil {
		return nil, ErrPoolUnavailable
	}
	return best, nil
}

// SweepDead 清理健康键已过期的服务器，返回清理数量
func (p *Pool) SweepDead() (int, error) {
	entries, err := p.client.HKeys(p.ctx, ServersKey).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range entries {
		if p.IsHealthy(id) {
			continue
		}
		log.Printf("清理失联服务器: %s", id)
		if err := p.Unregister(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Stats 汇总服务器池统计
func (p *Pool) Stats() (*PoolStats, error) {
	statuses, err := p.List()
	if err != nil {
		return nil, err
	}

	stats := &PoolStats{
		TotalServers: len(statuses),
		Regions:      make(map[string]RegionStats),
	}
	for _, s := range statuses {
		stats.ActiveGames += s.ActiveGames

		region := s.Region
		if region == "" {
			region = "default"
		}
		rs := stats.Regions[region]
		rs.Servers++
		rs.ActiveGames += s.ActiveGames

		if s.Healthy {
			stats.HealthyServers++
			stats.TotalCapacity += s.MaxGames
			rs.Healthy++
			rs.Capacity += s.MaxGames
		}
		stats.Regions[region] = rs
	}
	if stats.TotalCapacity > 0 {
		// 百分比保留两位小数
		ratio := float64(stats.ActiveGames) / float64(stats.TotalCapacity)
		stats.Utilization = math.Round(ratio*10000) / 100
	}
	return stats, nil
}

// getServer 读取单个服务器的注册信息
func (p *Pool) getServer(serverID string) (*ServerInfo, error) {
	raw, err := p.client.HGet(p.ctx, ServersKey, serverID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	var info ServerInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
