// queue.go

package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/internal/models"
	"github.com/jacl-coder/Caro-Server/internal/pool"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// 匹配队列的Redis键布局
const (
	// QueueKey 匹配队列(ZSET: 成员为玩家ID，分数为ELO)
	QueueKey = "matchmaking:queue"

	// UserKeyPrefix 排队玩家信息前缀(HASH: username/elo/joined_at，带TTL)
	UserKeyPrefix = "matchmaking:user:"

	// UserMatchKeyPrefix 玩家已匹配成功的对局ID
	UserMatchKeyPrefix = "matchmaking:user_match:"

	// StatsKey 匹配统计计数(HASH)
	StatsKey = "matchmaking:stats"
)

var (
	// ErrQueueRaceLost 对手在本次配对完成前被其他配对抢走
	ErrQueueRaceLost = errors.New("对手已被其他配对抢走")
	// ErrNotInQueue 玩家不在匹配队列中
	ErrNotInQueue = errors.New("玩家不在匹配队列中")
	// ErrNoOpponent 当前范围内没有合适的对手
	ErrNoOpponent = errors.New("当前范围内没有合适的对手")
	// ErrBackingStoreUnavailable Redis不可用，队列运行在降级模式
	ErrBackingStoreUnavailable = errors.New("匹配存储不可用")
)

// QueueEntry 队列中的玩家条目
type QueueEntry struct {
	PlayerID int64
	Username string
	Elo      int
	JoinedAt time.Time
}

// QueueStats 匹配队列统计
type QueueStats struct {
	QueueSize       int            `json:"queue_size"`
	TotalJoined     int64          `json:"total_joined"`
	TotalMatched    int64          `json:"total_matched"`
	EloDistribution map[string]int `json:"elo_distribution"`
	Degraded        bool           `json:"degraded"`
}

// Queue 基于Redis的匹配队列
// 玩家按ELO存入有序集合，搜索范围随等待时间逐步扩大。
// 配对采用条件移除：ZREM返回1才算占有该玩家，两个匹配流程
// 不可能同时占有同一人。Redis不可用时退回进程内降级队列。
type Queue struct {
	client   *redis.Client
	ctx      context.Context
	cfg      *config.Config
	pool     *pool.Pool
	fallback *MemoryQueue
}

// NewQueue 创建匹配队列
func NewQueue(cfg *config.Config) *Queue {
	return &Queue{
		client:   db.RedisClient,
		ctx:      context.Background(),
		cfg:      cfg,
		pool:     pool.NewPool(cfg),
		fallback: NewMemoryQueue(cfg),
	}
}

// userKey 排队玩家信息键
func userKey(playerID int64) string {
	return UserKeyPrefix + strconv.FormatInt(playerID, 10)
}

// userMatchKey 玩家已匹配对局键
func userMatchKey(playerID int64) string {
	return UserMatchKeyPrefix + strconv.FormatInt(playerID, 10)
}

// member 队列成员表示
func member(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}

// available 检查Redis是否可用
func (q *Queue) available() bool {
	return q.client != nil && q.client.Ping(q.ctx).Err() == nil
}

// Join 玩家加入匹配队列
// 重复加入会刷新条目但保留原入队时间，避免重置搜索范围。
func (q *Queue) Join(playerID int64, username string, eloRating int) error {
	if !q.available() {
		log.Printf("Redis不可用，玩家 %d 进入降级队列", playerID)
		return q.fallback.Join(playerID, username, eloRating)
	}

	now := time.Now()
	joinedAt := now.Unix()
	if prev, err := q.client.HGet(q.ctx, userKey(playerID), "joined_at").Result(); err == nil {
		if ts, err := strconv.ParseInt(prev, 10, 64); err == nil {
			joinedAt = ts
		}
	}

	entryTTL := time.Duration(q.cfg.Matchmaking.EntryTTL) * time.Second

	pipe := q.client.TxPipeline()
	pipe.ZAdd(q.ctx, QueueKey, &redis.Z{
		Score:  float64(eloRating),
		Member: member(playerID),
	})
	pipe.HSet(q.ctx, userKey(playerID), map[string]interface{}{
		"username":  username,
		"elo":       eloRating,
		"joined_at": joinedAt,
	})
	pipe.Expire(q.ctx, userKey(playerID), entryTTL)
	pipe.Del(q.ctx, userMatchKey(playerID))
	pipe.HIncrBy(q.ctx, StatsKey, "total_joined", 1)
	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("加入匹配队列失败: %w", err)
	}

	log.Printf("玩家 %d(ELO %d) 加入匹配队列", playerID, eloRating)
	return nil
}

// Leave 玩家离开匹配队列
func (q *Queue) Leave(playerID int64) (bool, error) {
	if !q.available() {
		return q.fallback.Leave(playerID), nil
	}

	removed, err := q.client.ZRem(q.ctx, QueueKey, member(playerID)).Result()
	if err != nil {
		return false, fmt.Errorf("离开匹配队列失败: %w", err)
	}
	q.client.Del(q.ctx, userKey(playerID))

	if removed > 0 {
		log.Printf("玩家 %d 离开匹配队列", playerID)
	}
	return removed > 0, nil
}

// Heartbeat 刷新排队玩家条目的存活时间
// 客户端的匹配进度轮询视为心跳，持续轮询的玩家不会被当作过期清理。
func (q *Queue) Heartbeat(playerID int64) error {
	if !q.available() {
		return q.fallback.Heartbeat(playerID)
	}

	ttl := time.Duration(q.cfg.Matchmaking.EntryTTL) * time.Second
	ok, err := q.client.Expire(q.ctx, userKey(playerID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInQueue
	}
	return nil
}

// GetEntry 读取排队玩家条目
func (q *Queue) GetEntry(playerID int64) (*QueueEntry, error) {
	if !q.available() {
		return q.fallback.GetEntry(playerID)
	}

	fields, err := q.client.HGetAll(q.ctx, userKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotInQueue
	}

	eloRating, _ := strconv.Atoi(fields["elo"])
	joinedAt, _ := strconv.ParseInt(fields["joined_at"], 10, 64)
	return &QueueEntry{
		PlayerID: playerID,
		Username: fields["username"],
		Elo:      eloRating,
		JoinedAt: time.Unix(joinedAt, 0),
	}, nil
}

// EloRange 计算玩家当前的ELO搜索半径
// 基础半径随等待时间按固定步长扩大，有上限。
func (q *Queue) EloRange(joinedAt time.Time, now time.Time) int {
	mm := q.cfg.Matchmaking
	elapsed := int(now.Sub(joinedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	expand := (elapsed / mm.ExpandInterval) * mm.ExpandStep
	if expand > mm.MaxExpand {
		expand = mm.MaxExpand
	}
	return mm.BaseEloRange + expand
}

// FindOpponent 在玩家当前搜索范围内寻找对手
// 范围内的候选按入队时间取等待最久的一名，同秒入队按ID定序；
// 条目已过期的僵尸成员被跳过。
func (q *Queue) FindOpponent(entry *QueueEntry) (*QueueEntry, error) {
	searchRange := q.EloRange(entry.JoinedAt, time.Now())
	min := strconv.Itoa(entry.Elo - searchRange)
	max := strconv.Itoa(entry.Elo + searchRange)

	candidates, err := q.client.ZRangeByScoreWithScores(q.ctx, QueueKey, &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, err
	}

	var oldest *QueueEntry
	for _, candidate := range candidates {
		id, err := strconv.ParseInt(candidate.Member.(string), 10, 64)
		if err != nil || id == entry.PlayerID {
			continue
		}

		opponent, err := q.GetEntry(id)
		if err != nil {
			// 条目已过期，留给清理协程处理
			continue
		}

		if oldest == nil || opponent.JoinedAt.Before(oldest.JoinedAt) ||
			(opponent.JoinedAt.Equal(oldest.JoinedAt) && opponent.PlayerID < oldest.PlayerID) {
			oldest = opponent
		}
	}

	if oldest == nil {
		return nil, ErrNoOpponent
	}
	return oldest, nil
}

// TryCreateMatch 尝试将两名玩家配成一局
// 先占有发起方，再占有对手；对手占有失败说明已被其他配对
// 抢走，把发起方按原分数放回队列并返回ErrQueueRaceLost。
func (q *Queue) TryCreateMatch(self, opponent *QueueEntry) (*models.MatchPairing, error) {
	removed, err := q.client.ZRem(q.ctx, QueueKey, member(self.PlayerID)).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		// 发起方自己已被其他配对占有
		return nil, ErrQueueRaceLost
	}

	removed, err = q.client.ZRem(q.ctx, QueueKey, member(opponent.PlayerID)).Result()
	if err != nil || removed == 0 {
		// 对手被抢走，发起方回到队列
		q.client.ZAdd(q.ctx, QueueKey, &redis.Z{
			Score:  float64(self.Elo),
			Member: member(self.PlayerID),
		})
		if err != nil {
			return nil, err
		}
		return nil, ErrQueueRaceLost
	}

	pairing, err := q.buildPairing(self, opponent)
	if err != nil {
		// 无可用服务器等原因导致建局失败，双方回到队列
		q.requeue(self)
		q.requeue(opponent)
		return nil, err
	}

	q.client.Del(q.ctx, userKey(self.PlayerID), userKey(opponent.PlayerID))
	q.client.HIncrBy(q.ctx, StatsKey, "total_matched", 1)

	log.Printf("配对成功: %d(ELO %d) vs %d(ELO %d), 对局: %s",
		self.PlayerID, self.Elo, opponent.PlayerID, opponent.Elo, pairing.MatchID)
	return pairing, nil
}

// buildPairing 选择游戏服务器并写入配对记录
func (q *Queue) buildPairing(self, opponent *QueueEntry) (*models.MatchPairing, error) {
	server, err := q.pool.SelectBestServer(q.cfg.Pool.Region, 1)
	if errors.Is(err, pool.ErrPoolUnavailable) && q.cfg.Pool.Region != "" {
		// 本区域无可用服务器时放宽区域限制
		server, err = q.pool.SelectBestServer("", 1)
	}
	if err != nil {
		return nil, err
	}

	black, white := orderSides(self, opponent)
	pairing := &models.MatchPairing{
		MatchID: uuid.New().String(),
		Mode:    models.ModeOnline,
		Players: [2]models.PairedPlayer{
			{ID: black.PlayerID, Username: black.Username, Elo: black.Elo},
			{ID: white.PlayerID, Username: white.Username, Elo: white.Elo},
		},
		ServerID:  server.ID,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(pairing)
	if err != nil {
		return nil, fmt.Errorf("序列化配对记录失败: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(q.ctx, models.MatchPairingKeyPrefix+pairing.MatchID, data, models.MatchPairingTTL)
	pipe.Set(q.ctx, userMatchKey(self.PlayerID), pairing.MatchID, models.MatchPairingTTL)
	pipe.Set(q.ctx, userMatchKey(opponent.PlayerID), pairing.MatchID, models.MatchPairingTTL)
	if _, err := pipe.Exec(q.ctx); err != nil {
		return nil, fmt.Errorf("写入配对记录失败: %w", err)
	}

	if err := q.pool.Assign(server.ID, pairing.MatchID); err != nil {
		log.Printf("记录对局承载失败: %v", err)
	}
	return pairing, nil
}

// orderSides 抛硬币决定黑白双方
func orderSides(a, b *QueueEntry) (*QueueEntry, *QueueEntry) {
	if rand.Intn(2) == 1 {
		return b, a
	}
	return a, b
}

// requeue 把玩家按原分数放回队列
func (q *Queue) requeue(entry *QueueEntry) {
	q.client.ZAdd(q.ctx, QueueKey, &redis.Z{
		Score:  float64(entry.Elo),
		Member: member(entry.PlayerID),
	})
}

// MatchNow 为排队玩家尝试一次即时配对
// 没有对手或占有失败都按继续等待处理，返回nil。
func (q *Queue) MatchNow(entry *QueueEntry) *models.MatchPairing {
	if !q.available() {
		q.fallback.MatchOnce()
		pairing, _ := q.fallback.MatchedPairing(entry.PlayerID)
		return pairing
	}

	opponent, err := q.FindOpponent(entry)
	if err != nil {
		return nil
	}
	pairing, err := q.TryCreateMatch(entry, opponent)
	if err != nil {
		return nil
	}
	return pairing
}

// MatchedPairing 查询玩家已匹配成功的配对记录
func (q *Queue) MatchedPairing(playerID int64) (*models.MatchPairing, error) {
	if !q.available() {
		return q.fallback.MatchedPairing(playerID)
	}

	matchID, err := q.client.Get(q.ctx, userMatchKey(playerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	data, err := q.client.Get(q.ctx, models.MatchPairingKeyPrefix+matchID).Result()
	if err != nil {
		return nil, err
	}

	var pairing models.MatchPairing
	if err := json.Unmarshal([]byte(data), &pairing); err != nil {
		return nil, err
	}
	return &pairing, nil
}

// Position 查询玩家在队列中的名次(按ELO升序，1为最低分)
func (q *Queue) Position(playerID int64) (int, error) {
	if !q.available() {
		return q.fallback.Position(playerID), nil
	}

	rank, err := q.client.ZRank(q.ctx, QueueKey, member(playerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrNotInQueue
		}
		return 0, err
	}
	return int(rank) + 1, nil
}

// Size 查询队列人数
func (q *Queue) Size() (int, error) {
	if !q.available() {
		return q.fallback.Size(), nil
	}

	n, err := q.client.ZCard(q.ctx, QueueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Members 按ELO升序列出队列中的全部玩家ID
func (q *Queue) Members() ([]int64, error) {
	if !q.available() {
		return q.fallback.Members(), nil
	}

	raw, err := q.client.ZRange(q.ctx, QueueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(raw))
	for _, m := range raw {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Stats 汇总匹配队列统计
func (q *Queue) Stats() (*QueueStats, error) {
	if !q.available() {
		stats := q.fallback.Stats()
		stats.Degraded = true
		return stats, nil
	}

	size, err := q.Size()
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		QueueSize:       size,
		EloDistribution: make(map[string]int),
	}

	if fields, err := q.client.HGetAll(q.ctx, StatsKey).Result(); err == nil {
		stats.TotalJoined, _ = strconv.ParseInt(fields["total_joined"], 10, 64)
		stats.TotalMatched, _ = strconv.ParseInt(fields["total_matched"], 10, 64)
	}

	// ELO分布按固定区间统计
	buckets := []struct {
		label    string
		min, max string
	}{
		{"<1000", "-inf", "(1000"},
		{"1000-1199", "1000", "(1200"},
		{"1200-1399", "1200", "(1400"},
		{"1400-1599", "1400", "(1600"},
		{"1600-1799", "1600", "(1800"},
		{">=1800", "1800", "+inf"},
	}
	for _, bucket := range buckets {
		n, err := q.client.ZCount(q.ctx, QueueKey, bucket.min, bucket.max).Result()
		if err != nil {
			continue
		}
		stats.EloDistribution[bucket.label] = int(n)
	}

	return stats, nil
}

// MatchOnce 执行一轮配对，返回本轮促成的对局数
// 每名玩家在自己当前的搜索范围内找最接近的对手；占有失败的
// 玩家留在队列等下一轮。
func (q *Queue) MatchOnce() int {
	if !q.available() {
		return q.fallback.MatchOnce()
	}

	ids, err := q.Members()
	if err != nil {
		log.Printf("读取匹配队列失败: %v", err)
		return 0
	}

	matched := 0
	for _, id := range ids {
		entry, err := q.GetEntry(id)
		if err != nil {
			continue
		}

		opponent, err := q.FindOpponent(entry)
		if err != nil {
			continue
		}

		if _, err := q.TryCreateMatch(entry, opponent); err != nil {
			if errors.Is(err, pool.ErrPoolUnavailable) {
				// 没有可用服务器时本轮不再继续
				log.Printf("配对中止: %v", err)
				return matched
			}
			continue
		}
		matched++
	}
	return matched
}

// CleanupStale 清理条目已过期的僵尸队列成员，返回清理数量
func (q *Queue) CleanupStale() (int, error) {
	if !q.available() {
		return q.fallback.CleanupStale(), nil
	}

	ids, err := q.Members()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		exists, err := q.client.Exists(q.ctx, userKey(id)).Result()
		if err != nil {
			return removed, err
		}
		if exists > 0 {
			continue
		}
		if n, err := q.client.ZRem(q.ctx, QueueKey, member(id)).Result(); err == nil && n > 0 {
			log.Printf("清理过期队列成员: %d", id)
			removed++
		}
	}
	return removed, nil
}
