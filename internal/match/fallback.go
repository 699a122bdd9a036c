// fallback.go

package match

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

// MemoryQueue Redis不可用时的进程内降级队列
// 所有操作在单把互斥锁下完成，配对天然无竞态。降级期间的
// 配对记录只存在于本进程，Redis恢复后新请求自动回到主队列。
type MemoryQueue struct {
	mu         sync.Mutex
	cfg        *config.Config
	entries    map[int64]*QueueEntry
	pairings   map[int64]*models.MatchPairing
	lastActive map[int64]time.Time

	totalJoined  int64
	totalMatched int64
}

// NewMemoryQueue 创建降级队列
func NewMemoryQueue(cfg *config.Config) *MemoryQueue {
	return &MemoryQueue{
		cfg:        cfg,
		entries:    make(map[int64]*QueueEntry),
		pairings:   make(map[int64]*models.MatchPairing),
		lastActive: make(map[int64]time.Time),
	}
}

// Join 玩家加入降级队列
func (m *MemoryQueue) Join(playerID int64, username string, eloRating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	joinedAt := time.Now()
	if prev, ok := m.entries[playerID]; ok {
		joinedAt = prev.JoinedAt
	}

	m.entries[playerID] = &QueueEntry{
		PlayerID: playerID,
		Username: username,
		Elo:      eloRating,
		JoinedAt: joinedAt,
	}
	m.lastActive[playerID] = time.Now()
	delete(m.pairings, playerID)
	m.totalJoined++
	return nil
}

// Heartbeat 刷新玩家的最近活跃时间
func (m *MemoryQueue) Heartbeat(playerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[playerID]; !ok {
		return ErrNotInQueue
	}
	m.lastActive[playerID] = time.Now()
	return nil
}

// Leave 玩家离开降级队列
func (m *MemoryQueue) Leave(playerID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[playerID]; !ok {
		return false
	}
	delete(m.entries, playerID)
	delete(m.lastActive, playerID)
	return true
}

// GetEntry 读取玩家条目
func (m *MemoryQueue) GetEntry(playerID int64) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[playerID]
	if !ok {
		return nil, ErrNotInQueue
	}
	cp := *entry
	return &cp, nil
}

// MatchedPairing 查询玩家的降级配对记录
func (m *MemoryQueue) MatchedPairing(playerID int64) (*models.MatchPairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairing, ok := m.pairings[playerID]
	if !ok {
		return nil, nil
	}
	return pairing, nil
}

// Position 查询玩家名次(按ELO升序)
func (m *MemoryQueue) Position(playerID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	self, ok := m.entries[playerID]
	if !ok {
		return 0
	}

	position := 1
	for _, entry := range m.entries {
		if entry.PlayerID == playerID {
			continue
		}
		if entry.Elo < self.Elo || (entry.Elo == self.Elo && entry.PlayerID < playerID) {
			position++
		}
	}
	return position
}

// Size 查询队列人数
func (m *MemoryQueue) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Members 按ELO升序列出队列中的玩家ID
func (m *MemoryQueue) Members() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membersLocked()
}

// membersLocked 按ELO升序排列成员，调用方必须持锁
func (m *MemoryQueue) membersLocked() []int64 {
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.entries[ids[i]], m.entries[ids[j]]
		if a.Elo == b.Elo {
			return a.PlayerID < b.PlayerID
		}
		return a.Elo < b.Elo
	})
	return ids
}

// MatchOnce 执行一轮降级配对，返回促成的对局数
func (m *MemoryQueue) MatchOnce() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	mm := m.cfg.Matchmaking
	matched := 0

	for _, id := range m.membersLocked() {
		self, ok := m.entries[id]
		if !ok {
			continue
		}

		elapsed := int(now.Sub(self.JoinedAt).Seconds())
		expand := (elapsed / mm.ExpandInterval) * mm.ExpandStep
		if expand > mm.MaxExpand {
			expand = mm.MaxExpand
		}
		searchRange := mm.BaseEloRange + expand

		// 范围内等待最久的候选优先
		var oldest *QueueEntry
		for _, candidate := range m.entries {
			if candidate.PlayerID == self.PlayerID {
				continue
			}
			diff := candidate.Elo - self.Elo
			if diff < 0 {
				diff = -diff
			}
			if diff > searchRange {
				continue
			}
			if oldest == nil || candidate.JoinedAt.Before(oldest.JoinedAt) ||
				(candidate.JoinedAt.Equal(oldest.JoinedAt) && candidate.PlayerID < oldest.PlayerID) {
				oldest = candidate
			}
		}
		if oldest == nil {
			continue
		}

		black, white := orderSides(self, oldest)
		pairing := &models.MatchPairing{
			MatchID: uuid.New().String(),
			Mode:    models.ModeOnline,
			Players: [2]models.PairedPlayer{
				{ID: black.PlayerID, Username: black.Username, Elo: black.Elo},
				{ID: white.PlayerID, Username: white.Username, Elo: white.Elo},
			},
			CreatedAt: now,
		}

		delete(m.entries, self.PlayerID)
		delete(m.entries, oldest.PlayerID)
		delete(m.lastActive, self.PlayerID)
		delete(m.lastActive, oldest.PlayerID)
		m.pairings[self.PlayerID] = pairing
		m.pairings[oldest.PlayerID] = pairing
		m.totalMatched++
		matched++

		log.Printf("降级配对成功: %d vs %d, 对局: %s",
			self.PlayerID, oldest.PlayerID, pairing.MatchID)
	}
	return matched
}

// Stats 汇总降级队列统计
func (m *MemoryQueue) Stats() *QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &QueueStats{
		QueueSize:       len(m.entries),
		TotalJoined:     m.totalJoined,
		TotalMatched:    m.totalMatched,
		EloDistribution: make(map[string]int),
	}
	for _, entry := range m.entries {
		switch {
		case entry.Elo < 1000:
			stats.EloDistribution["<1000"]++
		case entry.Elo < 1200:
			stats.EloDistribution["1000-1199"]++
		case entry.Elo < 1400:
			stats.EloDistribution["1200-1399"]++
		case entry.Elo < 1600:
			stats.EloDistribution["1400-1599"]++
		case entry.Elo < 1800:
			stats.EloDistribution["1600-1799"]++
		default:
			stats.EloDistribution[">=1800"]++
		}
	}
	return stats
}

// CleanupStale 清理长时间无心跳的玩家，返回清理数量
func (m *MemoryQueue) CleanupStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl := time.Duration(m.cfg.Matchmaking.EntryTTL) * time.Second
	now := time.Now()
	removed := 0
	for id, entry := range m.entries {
		last, ok := m.lastActive[id]
		if !ok {
			last = entry.JoinedAt
		}
		if now.Sub(last) > ttl {
			delete(m.entries, id)
			delete(m.lastActive, id)
			removed++
		}
	}
	return removed
}
