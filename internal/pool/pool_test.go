// pool_test.go

package pool

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/jacl-coder/Caro-Server/config"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

func newTestPool(t *testing.T) (*Pool, *miniredis.Miniredis) {
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

	cfg := &config.Config{
		Pool: config.PoolConfig{HeartbeatTTL: 60, SweepPeriod: 30},
	}
	return NewPool(cfg), mr
}

func serverInfo(id string, registeredAt time.Time) *ServerInfo {
	return &ServerInfo{
		ID:           id,
		Host:         "localhost",
		Port:         8081,
		MaxGames:     100,
		RegisteredAt: registeredAt,
	}
}

func TestRegisterAndList(t *testing.T) {
	p, _ := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	p.Register(serverInfo("srv-b", base.Add(time.Minute)))
	p.Register(serverInfo("srv-a", base))

	statuses, err := p.List()
	if err != nil {
		t.Fatalf("列出服务器失败: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("期望2台服务器，得到: %d", len(statuses))
	}
	// 列表按注册时间排序
	if statuses[0].ID != "srv-a" || statuses[1].ID != "srv-b" {
		t.Fatalf("排序错误: %s, %s", statuses[0].ID, statuses[1].ID)
	}
	if !statuses[0].Healthy {
		t.Fatal("刚注册的服务器应健康")
	}
}

func TestRegisterPreservesRegisteredAt(t *testing.T) {
	p, _ := newTestPool(t)
	original := time.Now().Add(-time.Hour).Truncate(time.Second)

	p.Register(serverInfo("srv-1", original))
	// 重复注册不带注册时间
	p.Register(serverInfo("srv-1", time.Time{}))

	info, err := p.getServer("srv-1")
	if err != nil {
		t.Fatalf("读取服务器失败: %v", err)
	}
	if !info.RegisteredAt.Equal(original) {
		t.Fatalf("注册时间被重置: %v vs %v", info.RegisteredAt, original)
	}
}

func TestHeartbeat(t *testing.T) {
	p, mr := newTestPool(t)

	if err := p.Heartbeat("ghost", nil); err != ErrServerNotFound {
		t.Fatalf("未注册服务器心跳期望ErrServerNotFound，得到: %v", err)
	}

	p.Register(serverInfo("srv-1", time.Time{}))
	if !p.IsHealthy("srv-1") {
		t.Fatal("注册后应健康")
	}

	// 健康键过期后视为失联
	mr.FastForward(61 * time.Second)
	if p.IsHealthy("srv-1") {
		t.Fatal("心跳超时后应不健康")
	}

	// 心跳恢复健康
	if err := p.Heartbeat("srv-1", nil); err != nil {
		t.Fatalf("心跳失败: %v", err)
	}
	if !p.IsHealthy("srv-1") {
		t.Fatal("心跳后应恢复健康")
	}
}

func TestHeartbeatCarriesMetrics(t *testing.T) {
	p, _ := newTestPool(t)
	p.Register(serverInfo("srv-1", time.Time{}))

	metrics := &HeartbeatMetrics{CPUPercent: 37.5, MemoryPercent: 52.1, ActiveGames: 4}
	if err := p.Heartbeat("srv-1", metrics); err != nil {
		t.Fatalf("心跳失败: %v", err)
	}

	statuses, err := p.List()
	if err != nil || len(statuses) != 1 {
		t.Fatalf("列出服务器失败: %v", err)
	}
	got := statuses[0].Metrics
	if got == nil || got.CPUPercent != 37.5 || got.MemoryPercent != 52.1 || got.ActiveGames != 4 {
		t.Fatalf("心跳指标错误: %+v", got)
	}
}

func TestAssignRelease(t *testing.T) {
	p, _ := newTestPool(t)
	p.Register(serverInfo("srv-1", time.Time{}))

	p.Assign("srv-1", "match-1")
	p.Assign("srv-1", "match-2")

	n, err := p.ActiveCount("srv-1")
	if err != nil || n != 2 {
		t.Fatalf("期望承载2局，得到: %d, %v", n, err)
	}

	p.Release("srv-1", "match-1")
	if n, _ := p.ActiveCount("srv-1"); n != 1 {
		t.Fatalf("期望承载1局，得到: %d", n)
	}
}

func TestSelectBestServerLeastLoaded(t *testing.T) {
	p, _ := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	p.Register(serverInfo("srv-a", base))
	p.Register(serverInfo("srv-b", base.Add(time.Minute)))

	p.Assign("srv-a", "match-1")
	p.Assign("srv-a", "match-2")
	p.Assign("srv-b", "match-3")

	best, err := p.SelectBestServer("", 1)
	if err != nil {
		t.Fatalf("选择服务器失败: %v", err)
	}
	if best.ID != "srv-b" {
		t.Fatalf("应选择负载最低的srv-b，得到: %s", best.ID)
	}
}

func TestSelectBestServerTieBreak(t *testing.T) {
	p, _ := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	// 负载相同时取注册最早的一台
	p.Register(serverInfo("srv-late", base.Add(time.Minute)))
	p.Register(serverInfo("srv-early", base))

	best, err := p.SelectBestServer("", 1)
	if err != nil {
		t.Fatalf("选择服务器失败: %v", err)
	}
	if best.ID != "srv-early" {
		t.Fatalf("平分应取注册最早的srv-early，得到: %s", best.ID)
	}
}

func TestSelectBestServerSkipsUnhealthyAndFull(t *testing.T) {
	p, mr := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	p.Register(serverInfo("srv-dead", base))
	mr.FastForward(61 * time.Second)

	full := serverInfo("srv-full", base.Add(time.Minute))
	full.MaxGames = 1
	p.Register(full)
	p.Assign("srv-full", "match-1")

	p.Register(serverInfo("srv-ok", base.Add(2*time.Minute)))

	best, err := p.SelectBestServer("", 1)
	if err != nil {
		t.Fatalf("选择服务器失败: %v", err)
	}
	if best.ID != "srv-ok" {
		t.Fatalf("应跳过失联和满载的服务器，得到: %s", best.ID)
	}
}

func TestSelectBestServerRegionFilter(t *testing.T) {
	p, _ := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	asia := serverInfo("srv-asia", base)
	asia.Region = "ap-southeast-1"
	p.Register(asia)

	eu := serverInfo("srv-eu", base.Add(time.Minute))
	eu.Region = "eu-west-1"
	p.Register(eu)

	// 指定区域时即使别处负载更低也不跨区
	p.Assign("srv-asia", "match-1")
	best, err := p.SelectBestServer("ap-southeast-1", 1)
	if err != nil {
		t.Fatalf("选择服务器失败: %v", err)
	}
	if best.ID != "srv-asia" {
		t.Fatalf("应选择本区域的srv-asia，得到: %s", best.ID)
	}

	if _, err := p.SelectBestServer("us-east-1", 1); err != ErrPoolUnavailable {
		t.Fatalf("无此区域服务器期望ErrPoolUnavailable，得到: %v", err)
	}
}

func TestSelectBestServerMinFreeCapacity(t *testing.T) {
	p, _ := newTestPool(t)

	info := serverInfo("srv-1", time.Time{})
	info.MaxGames = 3
	p.Register(info)
	p.Assign("srv-1", "match-1")

	// 剩余2个空位
	if _, err := p.SelectBestServer("", 2); err != nil {
		t.Fatalf("空位充足应可入选: %v", err)
	}
	if _, err := p.SelectBestServer("", 3); err != ErrPoolUnavailable {
		t.Fatalf("空位不足期望ErrPoolUnavailable，得到: %v", err)
	}
}

func TestSelectBestServerSkipsZeroCapacity(t *testing.T) {
	p, _ := newTestPool(t)

	info := serverInfo("srv-zero", time.Time{})
	info.MaxGames = 0
	p.Register(info)

	if _, err := p.SelectBestServer("", 1); err != ErrPoolUnavailable {
		t.Fatalf("零容量服务器不应入选，得到: %v", err)
	}
}

func TestSelectBestServerEmpty(t *testing.T) {
	p, _ := newTestPool(t)

	if _, err := p.SelectBestServer("", 1); err != ErrPoolUnavailable {
		t.Fatalf("期望ErrPoolUnavailable，得到: %v", err)
	}
}

func TestSweepDead(t *testing.T) {
	p, mr := newTestPool(t)

	p.Register(serverInfo("srv-dead", time.Time{}))
	mr.FastForward(61 * time.Second)
	p.Register(serverInfo("srv-alive", time.Time{}))

	removed, err := p.SweepDead()
	if err != nil || removed != 1 {
		t.Fatalf("期望清理1台，得到: %d, %v", removed, err)
	}

	statuses, _ := p.List()
	if len(statuses) != 1 || statuses[0].ID != "srv-alive" {
		t.Fatalf("清理结果错误: %+v", statuses)
	}
}

func TestUnregister(t *testing.T) {
	p, _ := newTestPool(t)

	p.Register(serverInfo("srv-1", time.Time{}))
	p.Assign("srv-1", "match-1")

	if err := p.Unregister("srv-1"); err != nil {
		t.Fatalf("注销失败: %v", err)
	}
	if statuses, _ := p.List(); len(statuses) != 0 {
		t.Fatalf("注销后不应有服务器: %+v", statuses)
	}
	if n, _ := p.ActiveCount("srv-1"); n != 0 {
		t.Fatalf("注销应清除承载记录: %d", n)
	}
}

func TestStats(t *testing.T) {
	p, mr := newTestPool(t)
	base := time.Now().Add(-time.Hour)

	p.Register(serverInfo("srv-dead", base))
	mr.FastForward(61 * time.Second)

	p.Register(serverInfo("srv-a", base))
	eu := serverInfo("srv-b", base.Add(time.Minute))
	eu.Region = "eu-west-1"
	p.Register(eu)
	p.Assign("srv-a", "match-1")
	p.Assign("srv-b", "match-2")
	p.Assign("srv-b", "match-3")

	stats, err := p.Stats()
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.TotalServers != 3 || stats.HealthyServers != 2 {
		t.Fatalf("服务器计数错误: %+v", stats)
	}
	if stats.ActiveGames != 3 || stats.TotalCapacity != 200 {
		t.Fatalf("承载统计错误: %+v", stats)
	}
	// 利用率 = 3/200
	if stats.Utilization != 1.5 {
		t.Fatalf("利用率错误: %v", stats.Utilization)
	}

	// 无区域标签的服务器归入default
	def := stats.Regions["default"]
	if def.Servers != 2 || def.Healthy != 1 || def.ActiveGames != 1 || def.Capacity != 100 {
		t.Fatalf("default区域统计错误: %+v", def)
	}
	euStats := stats.Regions["eu-west-1"]
	if euStats.Servers != 1 || euStats.Healthy != 1 || euStats.ActiveGames != 2 || euStats.Capacity != 100 {
		t.Fatalf("eu-west-1区域统计错误: %+v", euStats)
	}
}
