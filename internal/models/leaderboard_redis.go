package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// RedisLeaderboard Redis排行榜管理器
type RedisLeaderboard struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisLeaderboard 创建Redis排行榜管理器
func NewRedisLeaderboard() *RedisLeaderboard {
	return &RedisLeaderboard{
		client: db.RedisClient,
		ctx:    context.Background(),
	}
}

// 排行榜Redis键名
const (
	LeaderboardEloKey = "leaderboard:elo"

	// 玩家详细信息键前缀
	PlayerInfoPrefix = "player:info:"

	// 排行榜缓存时间
	LeaderboardCacheTTL = 5 * time.Minute
)

// UpdatePlayerRating 更新玩家的ELO排行分数
func (rl *RedisLeaderboard) UpdatePlayerRating(playerID int64, rating int) error {
	return rl.client.ZAdd(rl.ctx, LeaderboardEloKey, &redis.Z{
		Score:  float64(rating),
		Member: strconv.FormatInt(playerID, 10),
	}).Err()
}

// GetPlayerRank 获取玩家在ELO排行榜中的排名(1为最高)
func (rl *RedisLeaderboard) GetPlayerRank(playerID int64) (int, error) {
	rank, err := rl.client.ZRevRank(rl.ctx, LeaderboardEloKey, strconv.FormatInt(playerID, 10)).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, nil // 玩家不在排行榜中
		}
		return -1, err
	}

	return int(rank) + 1, nil // Redis排名从0开始，转换为从1开始
}

// GetLeaderboard 获取ELO排行榜前N名
func (rl *RedisLeaderboard) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	members, err := rl.client.ZRevRangeWithScores(rl.ctx, LeaderboardEloKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	var entries []LeaderboardEntry
	for i, member := range members {
		playerID, err := strconv.ParseInt(member.Member.(string), 10, 64)
		if err != nil {
			continue
		}

		// 获取玩家详细信息
		entry, err := rl.getPlayerInfo(playerID)
		if err != nil {
			// 如果Redis中没有玩家信息，从数据库获取
			entry, err = rl.getPlayerInfoFromDB(playerID)
			if err != nil {
				continue
			}
			// 缓存到Redis
			rl.cachePlayerInfo(entry)
		}

		// 更新分数和排名
		entry.EloRating = int(member.Score)
		entry.Rank = i + 1

		entries = append(entries, *entry)
	}

	return entries, nil
}

// RefreshLeaderboard 刷新排行榜（从数据库重新加载）
func (rl *RedisLeaderboard) RefreshLeaderboard() error {
	query := `
		SELECT
			p.id AS player_id,
			p.username,
			p.elo_rating,
			p.wins,
			p.losses,
			p.draws,
			CASE WHEN (p.wins + p.losses + p.draws) > 0
			     THEN (p.wins * 100.0 / (p.wins + p.losses + p.draws))
			     ELSE 0 END AS win_rate
		FROM players p
		ORDER BY p.elo_rating DESC
		LIMIT 1000
	`

	rows, err := db.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	// 清空现有排行榜
	rl.client.Del(rl.ctx, LeaderboardEloKey)

	// 重新填充排行榜
	for rows.Next() {
		var entry LeaderboardEntry
		err := rows.Scan(
			&entry.PlayerID, &entry.Username, &entry.EloRating,
			&entry.Wins, &entry.Losses, &entry.Draws, &entry.WinRate,
		)
		if err != nil {
			continue
		}

		rl.UpdatePlayerRating(entry.PlayerID, entry.EloRating)
		rl.cachePlayerInfo(&entry)
	}

	return nil
}

// cachePlayerInfo 缓存玩家信息
func (rl *RedisLeaderboard) cachePlayerInfo(entry *LeaderboardEntry) error {
	key := fmt.Sprintf("%s%d", PlayerInfoPrefix, entry.PlayerID)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return rl.client.Set(rl.ctx, key, data, LeaderboardCacheTTL).Err()
}

// getPlayerInfo 从Redis获取玩家信息
func (rl *RedisLeaderboard) getPlayerInfo(playerID int64) (*LeaderboardEntry, error) {
	key := fmt.Sprintf("%s%d", PlayerInfoPrefix, playerID)

	data, err := rl.client.Get(rl.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var entry LeaderboardEntry
	err = json.Unmarshal([]byte(data), &entry)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// getPlayerInfoFromDB 从数据库获取玩家信息
func (rl *RedisLeaderboard) getPlayerInfoFromDB(playerID int64) (*LeaderboardEntry, error) {
	query := `
		SELECT
			p.id AS player_id,
			p.username,
			p.elo_rating,
			p.wins,
			p.losses,
			p.draws,
			CASE WHEN (p.wins + p.losses + p.draws) > 0
			     THEN (p.wins * 100.0 / (p.wins + p.losses + p.draws))
			     ELSE 0 END AS win_rate
		FROM players p
		WHERE p.id = $1
	`

	var entry LeaderboardEntry
	err := db.DB.QueryRow(query, playerID).Scan(
		&entry.PlayerID, &entry.Username, &entry.EloRating,
		&entry.Wins, &entry.Losses, &entry.Draws, &entry.WinRate,
	)

	if err != nil {
		return nil, err
	}

	return &entry, nil
}
