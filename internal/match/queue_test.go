// queue_test.go

package match

import (
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/internal/pool"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

func testConfig() *config.Config {
	return &config.Config{
		Matchmaking: config.MatchmakingConfig{
			BaseEloRange:   100,
			ExpandInterval: 10,
			ExpandStep:     10,
			MaxExpand:      500,
			EntryTTL:       300,
			CleanupPeriod:  30,
		},
		Pool: config.PoolConfig{
			HeartbeatTTL: 60,
			SweepPeriod:  30,
		},
	}
}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		db.RedisClient.Close()
		db.RedisClient = nil
	})

	return NewQueue(testConfig()), mr
}

// registerTestServer 向服务器池注册一台健康服务器
func registerTestServer(t *testing.T, id string) {
	t.Helper()
	p := pool.NewPool(testConfig())
	if err := p.Register(&pool.ServerInfo{ID: id, Host: "localhost", Port: 8081, MaxGames: 100}); err != nil {
		t.Fatalf("注册服务器失败: %v", err)
	}
}

// backdateJoin 把排队玩家的入队时间回拨指定秒数
func backdateJoin(t *testing.T, q *Queue, playerID int64, seconds int) {
	t.Helper()
	ts := time.Now().Add(-time.Duration(seconds) * time.Second).Unix()
	if err := q.client.HSet(q.ctx, userKey(playerID), "joined_at", strconv.FormatInt(ts, 10)).Err(); err != nil {
		t.Fatalf("回拨入队时间失败: %v", err)
	}
}

func TestJoinAndPosition(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1100)
	q.Join(3, "carol", 1400)

	size, err := q.Size()
	if err != nil || size != 3 {
		t.Fatalf("期望队列人数3，得到: %d, %v", size, err)
	}

	// 名次按ELO升序
	pos, err := q.Position(2)
	if err != nil || pos != 1 {
		t.Fatalf("期望bob名次1，得到: %d, %v", pos, err)
	}
	pos, _ = q.Position(3)
	if pos != 3 {
		t.Fatalf("期望carol名次3，得到: %d", pos)
	}

	entry, err := q.GetEntry(1)
	if err != nil {
		t.Fatalf("读取条目失败: %v", err)
	}
	if entry.Username != "alice" || entry.Elo != 1200 {
		t.Fatalf("条目内容错误: %+v", entry)
	}
}

func TestRejoinPreservesJoinedAt(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	backdateJoin(t, q, 1, 120)

	before, _ := q.GetEntry(1)
	q.Join(1, "alice", 1210)
	after, err := q.GetEntry(1)
	if err != nil {
		t.Fatalf("读取条目失败: %v", err)
	}

	// 重复加入保留原入队时间，搜索范围不重置
	if !after.JoinedAt.Equal(before.JoinedAt) {
		t.Fatalf("入队时间被重置: %v vs %v", before.JoinedAt, after.JoinedAt)
	}
	if after.Elo != 1210 {
		t.Fatalf("条目分数应刷新，得到: %d", after.Elo)
	}
}

func TestLeave(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	removed, err := q.Leave(1)
	if err != nil || !removed {
		t.Fatalf("离开队列失败: %v, %v", removed, err)
	}
	removed, _ = q.Leave(1)
	if removed {
		t.Fatal("重复离开应返回false")
	}
	if _, err := q.GetEntry(1); err != ErrNotInQueue {
		t.Fatalf("期望ErrNotInQueue，得到: %v", err)
	}
}

func TestEloRangeExpansion(t *testing.T) {
	q, _ := newTestQueue(t)
	now := time.Now()

	cases := []struct {
		waited int
		want   int
	}{
		{0, 100},
		{9, 100},
		{10, 110},
		{35, 130},
		{100, 200},
		{9999, 600}, // 扩展到上限500
	}
	for _, tc := range cases {
		got := q.EloRange(now.Add(-time.Duration(tc.waited)*time.Second), now)
		if got != tc.want {
			t.Fatalf("等待%d秒期望范围%d，得到: %d", tc.waited, tc.want, got)
		}
	}
}

func TestFindOpponentRespectsRange(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1400)

	entry, _ := q.GetEntry(1)
	if _, err := q.FindOpponent(entry); err != ErrNoOpponent {
		t.Fatalf("分差200刚入队不应匹配，得到: %v", err)
	}

	// 等待约110秒后范围扩大到±210，1400进入范围
	backdateJoin(t, q, 1, 110)
	entry, _ = q.GetEntry(1)
	opponent, err := q.FindOpponent(entry)
	if err != nil {
		t.Fatalf("扩展后应找到对手: %v", err)
	}
	if opponent.PlayerID != 2 {
		t.Fatalf("期望对手2，得到: %d", opponent.PlayerID)
	}
}

func TestFindOpponentPicksLongestWaiting(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1290)
	q.Join(3, "carol", 1210)

	// bob等待最久，即使carol分差更小也应先出队
	backdateJoin(t, q, 2, 60)

	entry, _ := q.GetEntry(1)
	opponent, err := q.FindOpponent(entry)
	if err != nil {
		t.Fatalf("寻找对手失败: %v", err)
	}
	if opponent.PlayerID != 2 {
		t.Fatalf("应选择等待最久的对手2，得到: %d", opponent.PlayerID)
	}
}

func TestOrderSidesRandomized(t *testing.T) {
	a := &QueueEntry{PlayerID: 1}
	b := &QueueEntry{PlayerID: 2}

	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		black, white := orderSides(a, b)
		if black.PlayerID == white.PlayerID {
			t.Fatal("黑白双方必须是不同玩家")
		}
		seen[black.PlayerID] = true
	}
	// 100次抛硬币后双方都应执过黑
	if !seen[1] || !seen[2] {
		t.Fatalf("执黑分配不随机: %v", seen)
	}
}

func TestHeartbeatRefreshesEntryTTL(t *testing.T) {
	q, mr := newTestQueue(t)

	q.Join(1, "alice", 1200)

	// 条目TTL为300秒，持续心跳的玩家不会过期
	mr.FastForward(250 * time.Second)
	if err := q.Heartbeat(1); err != nil {
		t.Fatalf("心跳失败: %v", err)
	}
	mr.FastForward(250 * time.Second)
	if _, err := q.GetEntry(1); err != nil {
		t.Fatalf("心跳后条目不应过期: %v", err)
	}

	if err := q.Heartbeat(99); err != ErrNotInQueue {
		t.Fatalf("不在队列的玩家心跳期望ErrNotInQueue，得到: %v", err)
	}
}

func TestMatchNow(t *testing.T) {
	q, _ := newTestQueue(t)
	registerTestServer(t, "srv-1")

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)
	q.Join(3, "carol", 2000)

	entry, _ := q.GetEntry(1)
	pairing := q.MatchNow(entry)
	if pairing == nil {
		t.Fatal("范围内有对手应立即配成")
	}
	if got, _ := q.MatchedPairing(2); got == nil || got.MatchID != pairing.MatchID {
		t.Fatalf("对手应拿到同一份配对: %+v", got)
	}

	// 范围外的玩家继续等待
	entry3, _ := q.GetEntry(3)
	if q.MatchNow(entry3) != nil {
		t.Fatal("范围外不应配对")
	}
	if size, _ := q.Size(); size != 1 {
		t.Fatalf("期望剩1人，得到: %d", size)
	}
}

func TestFindOpponentSkipsStaleEntries(t *testing.T) {
	q, mr := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)

	// 条目过期但仍留在ZSET中的僵尸成员
	mr.Del(userKey(2))

	entry, _ := q.GetEntry(1)
	if _, err := q.FindOpponent(entry); err != ErrNoOpponent {
		t.Fatalf("僵尸成员应被跳过，得到: %v", err)
	}
}

func TestTryCreateMatch(t *testing.T) {
	q, _ := newTestQueue(t)
	registerTestServer(t, "srv-1")

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)

	self, _ := q.GetEntry(1)
	opponent, _ := q.GetEntry(2)

	pairing, err := q.TryCreateMatch(self, opponent)
	if err != nil {
		t.Fatalf("配对失败: %v", err)
	}
	if pairing.ServerID != "srv-1" {
		t.Fatalf("期望分配到srv-1，得到: %s", pairing.ServerID)
	}
	// 黑白随机分配，但双方必须恰好是这两名玩家
	ids := map[int64]bool{pairing.Players[0].ID: true, pairing.Players[1].ID: true}
	if !ids[1] || !ids[2] {
		t.Fatalf("配对双方错误: %+v", pairing.Players)
	}

	// 双方都已出队
	if size, _ := q.Size(); size != 0 {
		t.Fatalf("配对后队列应为空，得到: %d", size)
	}

	// 双方都能查到同一份配对记录
	for _, id := range []int64{1, 2} {
		got, err := q.MatchedPairing(id)
		if err != nil || got == nil {
			t.Fatalf("玩家%d查询配对失败: %v", id, err)
		}
		if got.MatchID != pairing.MatchID {
			t.Fatalf("配对记录不一致: %s vs %s", got.MatchID, pairing.MatchID)
		}
	}
}

func TestTryCreateMatchRaceLost(t *testing.T) {
	q, _ := newTestQueue(t)
	registerTestServer(t, "srv-1")

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)

	self, _ := q.GetEntry(1)
	opponent, _ := q.GetEntry(2)

	// 对手先被其他配对流程占有
	q.client.ZRem(q.ctx, QueueKey, member(2))

	if _, err := q.TryCreateMatch(self, opponent); err != ErrQueueRaceLost {
		t.Fatalf("期望ErrQueueRaceLost，得到: %v", err)
	}

	// 发起方按原分数回到队列
	score, err := q.client.ZScore(q.ctx, QueueKey, member(1)).Result()
	if err != nil || int(score) != 1200 {
		t.Fatalf("发起方应回到队列: score=%v, err=%v", score, err)
	}
}

func TestTryCreateMatchSelfAlreadyClaimed(t *testing.T) {
	q, _ := newTestQueue(t)
	registerTestServer(t, "srv-1")

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)

	self, _ := q.GetEntry(1)
	opponent, _ := q.GetEntry(2)

	q.client.ZRem(q.ctx, QueueKey, member(1))

	if _, err := q.TryCreateMatch(self, opponent); err != ErrQueueRaceLost {
		t.Fatalf("期望ErrQueueRaceLost，得到: %v", err)
	}
	// 对手未被动过
	if _, err := q.client.ZScore(q.ctx, QueueKey, member(2)).Result(); err != nil {
		t.Fatalf("对手应仍在队列: %v", err)
	}
}

func TestTryCreateMatchNoServerRequeuesBoth(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1220)

	self, _ := q.GetEntry(1)
	opponent, _ := q.GetEntry(2)

	if _, err := q.TryCreateMatch(self, opponent); err != pool.ErrPoolUnavailable {
		t.Fatalf("期望ErrPoolUnavailable，得到: %v", err)
	}

	// 没有可用服务器时双方都回到队列
	if size, _ := q.Size(); size != 2 {
		t.Fatalf("双方应回到队列，得到人数: %d", size)
	}
}

func TestMatchOnce(t *testing.T) {
	q, _ := newTestQueue(t)
	registerTestServer(t, "srv-1")

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1250)
	q.Join(3, "carol", 2000)

	matched := q.MatchOnce()
	if matched != 1 {
		t.Fatalf("期望促成1局，得到: %d", matched)
	}

	// 分差过大的carol留在队列
	if size, _ := q.Size(); size != 1 {
		t.Fatalf("期望剩1人，得到: %d", size)
	}
	if _, err := q.GetEntry(3); err != nil {
		t.Fatalf("carol应仍在队列: %v", err)
	}
}

func TestCleanupStale(t *testing.T) {
	q, mr := newTestQueue(t)

	q.Join(1, "alice", 1200)
	q.Join(2, "bob", 1300)

	// 玩家1的条目过期
	mr.Del(userKey(1))

	removed, err := q.CleanupStale()
	if err != nil || removed != 1 {
		t.Fatalf("期望清理1个僵尸成员，得到: %d, %v", removed, err)
	}
	if size, _ := q.Size(); size != 1 {
		t.Fatalf("期望剩1人，得到: %d", size)
	}
}

func TestStats(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Join(1, "alice", 950)
	q.Join(2, "bob", 1250)
	q.Join(3, "carol", 1300)
	q.Join(4, "dave", 1900)

	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.QueueSize != 4 || stats.TotalJoined != 4 {
		t.Fatalf("统计人数错误: %+v", stats)
	}
	if stats.EloDistribution["<1000"] != 1 ||
		stats.EloDistribution["1200-1399"] != 2 ||
		stats.EloDistribution[">=1800"] != 1 {
		t.Fatalf("ELO分布错误: %v", stats.EloDistribution)
	}
	if stats.Degraded {
		t.Fatal("Redis可用时不应是降级模式")
	}
}
