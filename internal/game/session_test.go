// session_test.go

package game

import (
	"sync"
	"testing"

	"github.com/jacl-coder/Caro-Server/internal/ai"
	"github.com/jacl-coder/Caro-Server/internal/board"
	"github.com/jacl-coder/Caro-Server/internal/models"
)

func newTestOnlineSession() *MatchSession {
	black := &Participant{PlayerID: 1, Username: "alice", Rating: 1200, Connected: true}
	white := &Participant{PlayerID: 2, Username: "bob", Rating: 1250, Connected: true}
	return NewOnlineSession("session-1", black, white, 15, 5)
}

func TestOnlineSessionWaitsForBothPlayers(t *testing.T) {
	black := &Participant{PlayerID: 1, Username: "alice", Rating: 1200}
	white := &Participant{PlayerID: 2, Username: "bob", Rating: 1250}
	s := NewOnlineSession("session-wait", black, white, 15, 5)

	if s.Status() != models.MatchWaiting {
		t.Fatalf("双方未接入应为waiting状态，得到: %v", s.Status())
	}
	if _, err := s.MakeMove(1, 7, 7, ""); err != ErrGameNotActive {
		t.Fatalf("等待中不应接受落子，得到: %v", err)
	}

	if !s.Reconnect(1) {
		t.Fatal("标记接入失败")
	}
	if s.Status() != models.MatchWaiting {
		t.Fatalf("只有一方接入仍应等待，得到: %v", s.Status())
	}

	if !s.Reconnect(2) {
		t.Fatal("标记接入失败")
	}
	if s.Status() != models.MatchInProgress {
		t.Fatalf("双方到齐应开局，得到: %v", s.Status())
	}
	if _, err := s.MakeMove(1, 7, 7, ""); err != nil {
		t.Fatalf("开局后落子失败: %v", err)
	}
}

func TestOnlineTurnOrder(t *testing.T) {
	s := newTestOnlineSession()

	// 白方不能先手
	if _, err := s.MakeMove(2, 7, 7, ""); err != ErrNotYourTurn {
		t.Fatalf("期望ErrNotYourTurn，得到: %v", err)
	}

	outcome, err := s.MakeMove(1, 7, 7, "")
	if err != nil {
		t.Fatalf("黑方落子失败: %v", err)
	}
	if len(outcome.Moves) != 1 || outcome.Moves[0].Player != "X" {
		t.Fatalf("落子结果错误: %+v", outcome)
	}

	// 黑方不能连下两手
	if _, err := s.MakeMove(1, 7, 8, ""); err != ErrNotYourTurn {
		t.Fatalf("期望ErrNotYourTurn，得到: %v", err)
	}

	// 非参与者不能落子
	if _, err := s.MakeMove(99, 8, 8, ""); err != ErrNotInSession {
		t.Fatalf("期望ErrNotInSession，得到: %v", err)
	}
}

func TestOnlineWinFinishesOnce(t *testing.T) {
	s := newTestOnlineSession()

	// 黑方横向五连：黑下(7,3)..(7,7)，白下(8,x)陪跑
	for i := 0; i < 4; i++ {
		if _, err := s.MakeMove(1, 7, 3+i, ""); err != nil {
			t.Fatalf("黑方落子失败: %v", err)
		}
		if _, err := s.MakeMove(2, 8, 3+i, ""); err != nil {
			t.Fatalf("白方落子失败: %v", err)
		}
	}

	outcome, err := s.MakeMove(1, 7, 7, "")
	if err != nil {
		t.Fatalf("制胜一手失败: %v", err)
	}
	if outcome.Finish == nil {
		t.Fatal("制胜一手应产生结束报告")
	}
	if outcome.Finish.Result != models.ResultBlackWin {
		t.Fatalf("期望黑方胜，得到: %v", outcome.Finish.Result)
	}
	if len(outcome.Finish.WinningLine) != 5 {
		t.Fatalf("期望5个获胜坐标，得到: %v", outcome.Finish.WinningLine)
	}
	if s.Status() != models.MatchCompleted {
		t.Fatalf("期望completed状态，得到: %v", s.Status())
	}

	// 结束后的任何动作不再产生报告
	if _, err := s.MakeMove(2, 9, 9, ""); err != ErrGameNotActive {
		t.Fatalf("期望ErrGameNotActive，得到: %v", err)
	}
	if _, err := s.Forfeit(2); err != ErrGameNotActive {
		t.Fatalf("期望ErrGameNotActive，得到: %v", err)
	}
	report, err := s.Disconnect(2)
	if err != nil || report != nil {
		t.Fatalf("结束后掉线应为空操作: report=%v, err=%v", report, err)
	}
}

func TestForfeitOpponentWins(t *testing.T) {
	s := newTestOnlineSession()

	report, err := s.Forfeit(1)
	if err != nil {
		t.Fatalf("认输失败: %v", err)
	}
	if report == nil || report.Result != models.ResultWhiteWin {
		t.Fatalf("黑方认输应判白方胜: %+v", report)
	}
	if report.Status != models.MatchCompleted {
		t.Fatalf("认输应为completed状态: %v", report.Status)
	}
}

func TestDisconnectAbandonsMatch(t *testing.T) {
	s := newTestOnlineSession()

	report, err := s.Disconnect(2)
	if err != nil {
		t.Fatalf("掉线处理失败: %v", err)
	}
	if report == nil || report.Result != models.ResultBlackWin {
		t.Fatalf("白方掉线应判黑方胜: %+v", report)
	}
	if report.Status != models.MatchAbandoned {
		t.Fatalf("掉线应为abandoned状态: %v", report.Status)
	}
	if report.White.Connected {
		t.Fatal("掉线方应标记为未连接")
	}

	// 重复掉线幂等
	report, err = s.Disconnect(2)
	if err != nil || report != nil {
		t.Fatalf("重复掉线应为空操作: report=%v, err=%v", report, err)
	}
}

func TestConcurrentFinishSingleReport(t *testing.T) {
	// 认输与掉线并发到达，只有一条路径拿到结束报告
	for i := 0; i < 50; i++ {
		s := newTestOnlineSession()

		var wg sync.WaitGroup
		reports := make(chan *FinishReport, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			if r, err := s.Forfeit(1); err == nil && r != nil {
				reports <- r
			}
		}()
		go func() {
			defer wg.Done()
			if r, err := s.Disconnect(2); err == nil && r != nil {
				reports <- r
			}
		}()
		wg.Wait()
		close(reports)

		count := 0
		for range reports {
			count++
		}
		if count != 1 {
			t.Fatalf("期望恰好1份结束报告，得到: %d", count)
		}
	}
}

func TestAISessionAutoReply(t *testing.T) {
	human := &Participant{PlayerID: 1, Username: "alice", Rating: 1200, Connected: true}
	s := NewAISession("session-ai", human, ai.Medium, 15, 5)

	outcome, err := s.MakeMove(1, 7, 7, "")
	if err != nil {
		t.Fatalf("落子失败: %v", err)
	}
	// 一次请求产生玩家与AI两手棋
	if len(outcome.Moves) != 2 {
		t.Fatalf("期望2手棋，得到: %d", len(outcome.Moves))
	}
	if outcome.Moves[0].Player != "X" || outcome.Moves[1].Player != "O" {
		t.Fatalf("落子顺序错误: %+v", outcome.Moves)
	}

	// AI回手后仍轮到玩家
	if _, err := s.MakeMove(1, 0, 0, ""); err != nil {
		t.Fatalf("第二次落子失败: %v", err)
	}
}

func TestLocalSessionMarkBasedTurns(t *testing.T) {
	owner := &Participant{PlayerID: 1, Username: "alice", Connected: true}
	s := NewLocalSession("session-local", owner, 15, 5)

	// 本地模式凭记号行棋
	if _, err := s.MakeMove(1, 7, 7, "O"); err != ErrNotYourTurn {
		t.Fatalf("白记号不能先手，得到: %v", err)
	}
	if _, err := s.MakeMove(1, 7, 7, "X"); err != nil {
		t.Fatalf("黑记号落子失败: %v", err)
	}
	if _, err := s.MakeMove(1, 7, 8, "X"); err != ErrNotYourTurn {
		t.Fatalf("黑记号不能连下，得到: %v", err)
	}
	if _, err := s.MakeMove(1, 7, 8, "O"); err != nil {
		t.Fatalf("白记号落子失败: %v", err)
	}

	// 本地对局掉线直接作废，无胜方
	report, err := s.Disconnect(1)
	if err != nil {
		t.Fatalf("掉线处理失败: %v", err)
	}
	if report == nil || report.Result != models.ResultNone {
		t.Fatalf("本地对局作废不应有胜方: %+v", report)
	}
}

func TestMoveValidationOrder(t *testing.T) {
	s := newTestOnlineSession()

	// 占用格校验在行棋权之后
	if _, err := s.MakeMove(1, 7, 7, ""); err != nil {
		t.Fatalf("落子失败: %v", err)
	}
	if _, err := s.MakeMove(2, 7, 7, ""); err != board.ErrCellOccupied {
		t.Fatalf("期望ErrCellOccupied，得到: %v", err)
	}
	if _, err := s.MakeMove(2, 20, 20, ""); err != board.ErrOutOfBounds {
		t.Fatalf("期望ErrOutOfBounds，得到: %v", err)
	}
}

func TestRecordSnapshotsParticipants(t *testing.T) {
	s := newTestOnlineSession()
	s.MakeMove(1, 7, 7, "")

	record := s.Record()
	if record.BlackPlayerID != 1 || record.WhitePlayerID != 2 {
		t.Fatalf("参与方记录错误: %+v", record)
	}
	if record.BlackEloBefore != 1200 || record.WhiteEloBefore != 1250 {
		t.Fatalf("赛前ELO快照错误: %+v", record)
	}
	if len(record.MoveHistory) != 1 || record.MoveHistory[0].Seq != 1 {
		t.Fatalf("落子历史错误: %+v", record.MoveHistory)
	}
	if record.CurrentTurn != "O" {
		t.Fatalf("期望轮到白方，得到: %v", record.CurrentTurn)
	}
}

func TestOpponentOf(t *testing.T) {
	s := newTestOnlineSession()

	opp := s.OpponentOf(1)
	if opp == nil || opp.PlayerID != 2 {
		t.Fatalf("对手查询错误: %+v", opp)
	}
	if s.OpponentOf(99) != nil {
		t.Fatal("非参与者不应有对手")
	}

	// 返回的是副本，修改不影响会话内部状态
	opp.Connected = false
	if again := s.OpponentOf(1); !again.Connected {
		t.Fatal("对手信息应为副本")
	}
}
