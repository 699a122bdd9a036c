// board_test.go

package board

import (
	"testing"
)

func TestApplyMoveValidation(t *testing.T) {
	b := New(15, 5)

	if err := b.ApplyMove(7, 7, Black); err != nil {
		t.Fatalf("落子失败: %v", err)
	}
	if err := b.ApplyMove(7, 7, White); err != ErrCellOccupied {
		t.Fatalf("期望ErrCellOccupied，得到: %v", err)
	}
	if err := b.ApplyMove(-1, 0, Black); err != ErrOutOfBounds {
		t.Fatalf("期望ErrOutOfBounds，得到: %v", err)
	}
	if err := b.ApplyMove(0, 15, Black); err != ErrOutOfBounds {
		t.Fatalf("期望ErrOutOfBounds，得到: %v", err)
	}
	if got := b.Get(7, 7); got != Black {
		t.Fatalf("期望Black，得到: %v", got)
	}
}

func TestCheckWinHorizontal(t *testing.T) {
	b := New(15, 5)

	// (7,3)..(7,6)，最后落在(7,7)
	for c := 3; c <= 6; c++ {
		if err := b.ApplyMove(7, c, Black); err != nil {
			t.Fatalf("落子失败: %v", err)
		}
		if line := b.CheckWin(7, c, Black); line != nil {
			t.Fatalf("不满5连不应获胜: %v", line)
		}
	}
	if err := b.ApplyMove(7, 7, Black); err != nil {
		t.Fatalf("落子失败: %v", err)
	}

	line := b.CheckWin(7, 7, Black)
	if len(line) != 5 {
		t.Fatalf("期望5个获胜坐标，得到: %v", line)
	}
	// 坐标按轴向从一端到另一端排列
	for i, coord := range line {
		if coord.Row != 7 || coord.Col != 3+i {
			t.Fatalf("获胜坐标顺序错误: %v", line)
		}
	}
}

func TestCheckWinDiagonal(t *testing.T) {
	b := New(15, 5)

	for i := 0; i < 5; i++ {
		if err := b.ApplyMove(3+i, 3+i, White); err != nil {
			t.Fatalf("落子失败: %v", err)
		}
	}

	// 从线中间的点检测也应找到完整连珠
	if line := b.CheckWin(5, 5, White); len(line) != 5 {
		t.Fatalf("期望对角线5连，得到: %v", line)
	}
}

func TestCheckWinBlockedByOpponent(t *testing.T) {
	b := New(15, 5)

	b.ApplyMove(0, 0, Black)
	b.ApplyMove(0, 1, Black)
	b.ApplyMove(0, 2, White)
	b.ApplyMove(0, 3, Black)
	b.ApplyMove(0, 4, Black)

	if line := b.CheckWin(0, 4, Black); line != nil {
		t.Fatalf("被隔断的线不应获胜: %v", line)
	}
}

func TestIsFullAndEmptyCells(t *testing.T) {
	b := New(3, 3)

	if b.IsFull() {
		t.Fatal("空棋盘不应已满")
	}
	if got := len(b.EmptyCells()); got != 9 {
		t.Fatalf("期望9个空格，得到: %d", got)
	}

	sym := Black
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if err := b.ApplyMove(r, c, sym); err != nil {
				t.Fatalf("落子失败: %v", err)
			}
			sym = sym.Opponent()
		}
	}

	if !b.IsFull() {
		t.Fatal("棋盘应已满")
	}
	if got := len(b.EmptyCells()); got != 0 {
		t.Fatalf("满盘不应有空格，得到: %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New(15, 5)
	b.ApplyMove(7, 7, Black)
	b.ApplyMove(8, 8, White)
	b.ApplyMove(7, 8, Black)

	snapshot := b.Snapshot()
	if snapshot[7][7] != "X" || snapshot[8][8] != "O" || snapshot[0][0] != "" {
		t.Fatalf("快照内容错误: %v", snapshot[7])
	}

	restored := FromSnapshot(snapshot, 5)
	if restored.Get(7, 7) != Black || restored.Get(8, 8) != White || restored.Get(7, 8) != Black {
		t.Fatal("恢复后的棋盘与原盘不一致")
	}
	if restored.Get(0, 0) != Empty {
		t.Fatal("空格恢复后应仍为空")
	}
}

func TestMarkParse(t *testing.T) {
	if Black.Mark() != "X" || White.Mark() != "O" || Empty.Mark() != "" {
		t.Fatal("记号转换错误")
	}
	if ParseMark("X") != Black || ParseMark("O") != White || ParseMark("?") != Empty {
		t.Fatal("记号解析错误")
	}
	if Black.Opponent() != White || White.Opponent() != Black {
		t.Fatal("对方棋子计算错误")
	}
}
