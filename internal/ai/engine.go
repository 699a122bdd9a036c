// engine.go

package ai

import (
	"math/rand"

	"github.com/jacl-coder/Caro-Server/internal/board"
)

// Difficulty AI难度等级
type Difficulty string

const (
	// Easy 简单：完全随机落子
	Easy Difficulty = "easy"
	// Medium 中等：先抢胜/堵截，再按启发式评分选点
	Medium Difficulty = "medium"
	// Hard 困难：暂与中等相同，保留给未来的深度搜索
	Hard Difficulty = "hard"
)

// 评分参数
const (
	defenseWeight = 0.8 // 防守权重略低于进攻
	clusterBonus  = 8   // 每个相邻己方棋子的聚集加分
)

// Engine 无状态的AI引擎，难度由每次调用传入
type Engine struct{}

// NewEngine 创建AI引擎
func NewEngine() *Engine {
	return &Engine{}
}

// SelectMove 为指定棋子选择落点
func (e *Engine) SelectMove(b *board.Board, sym board.Symbol, difficulty Difficulty) (int, int) {
	switch difficulty {
	case Easy:
		return e.randomMove(b)
	case Medium, Hard:
		return e.smartMove(b, sym)
	default:
		return e.smartMove(b, sym)
	}
}

// randomMove 在所有空格中随机选择
func (e *Engine) randomMove(b *board.Board) (int, int) {
	empty := b.EmptyCells()
	if len(empty) == 0 {
		return 0, 0
	}
	cell := empty[rand.Intn(len(empty))]
	return cell.Row, cell.Col
}

// smartMove 按优先级选点：抢胜 > 堵截 > 启发式评分 > 随机兜底
func (e *Engine) smartMove(b *board.Board, sym board.Symbol) (int, int) {
	// 有一步即胜的点则直接落子
	if row, col, ok := e.findWinningCell(b, sym); ok {
		return row, col
	}

	// 对方下一步即胜的点必须堵住
	if row, col, ok := e.findWinningCell(b, sym.Opponent()); ok {
		return row, col
	}

	// 候选点为已有棋子的切比雪夫距离1邻域内的空格，
	// 按行优先顺序遍历，平分时保留最先遇到的点，保证行为可复现
	bestScore := -1.0
	bestRow, bestCol := -1, -1
	size := b.Size()
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			if b.Get(r, c) != board.Empty || !e.hasNeighbor(b, r, c) {
				continue
			}
			score := e.scoreCell(b, r, c, sym)
			if score > bestScore {
				bestScore = score
				bestRow, bestCol = r, c
			}
		}
	}
	if bestRow >= 0 {
		return bestRow, bestCol
	}

	// 空棋盘等无候选点的情况退化为随机
	return e.randomMove(b)
}

// findWinningCell 寻找落子后立即形成连珠的空格
func (e *Engine) findWinningCell(b *board.Board, sym board.Symbol) (int, int, bool) {
	size := b.Size()
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			if b.Get(r, c) != board.Empty {
				continue
			}
			for axis := 0; axis < 4; axis++ {
				count, _ := e.walkLine(b, r, c, sym, axis)
				if count >= b.WinLength() {
					return r, c, true
				}
			}
		}
	}
	return 0, 0, false
}

// hasNeighbor 检查该空格周围8格内是否有棋子
func (e *Engine) hasNeighbor(b *board.Board, row, col int) bool {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if b.Get(row+dr, col+dc) != board.Empty {
				return true
			}
		}
	}
	return false
}

// scoreCell 评估候选点：四条轴的进攻分 + 加权防守分 + 聚集加分
func (e *Engine) scoreCell(b *board.Board, row, col int, sym board.Symbol) float64 {
	opponent := sym.Opponent()
	score := 0.0

	for axis := 0; axis < 4; axis++ {
		count, open := e.walkLine(b, row, col, sym, axis)
		score += lineValue(count, open, b.WinLength())

		count, open = e.walkLine(b, row, col, opponent, axis)
		score += defenseWeight * lineValue(count, open, b.WinLength())
	}

	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if b.Get(row+dr, col+dc) == sym {
				score += clusterBonus
			}
		}
	}

	return score
}

// 四条检测轴的方向向量
var axisDirs = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// walkLine 假设(row, col)落有sym棋子，沿指定轴统计连续同色数量
// 返回连续数量(含假设棋子)和两侧空格开口数(0-2)。
func (e *Engine) walkLine(b *board.Board, row, col int, sym board.Symbol, axis int) (count, openEnds int) {
	dr, dc := axisDirs[axis][0], axisDirs[axis][1]
	count = 1

	for _, sign := range [2]int{1, -1} {
		r, c := row+sign*dr, col+sign*dc
		for r >= 0 && r < b.Size() && c >= 0 && c < b.Size() && b.Get(r, c) == sym {
			count++
			r += sign * dr
			c += sign * dc
		}
		if r >= 0 && r < b.Size() && c >= 0 && c < b.Size() && b.Get(r, c) == board.Empty {
			openEnds++
		}
	}

	return count, openEnds
}

// lineValue 线型价值表，按(连续数量, 开口数)取值
// 两端都被堵死的线没有进攻或防守价值。
func lineValue(count, openEnds, winLength int) float64 {
	if count >= winLength {
		return 10000
	}
	if openEnds == 0 {
		return 0
	}

	bothOpen := openEnds == 2
	switch count {
	case 4:
		if bothOpen {
			return 5000
		}
		return 1200
	case 3:
		if bothOpen {
			return 400
		}
		return 120
	case 2:
		if bothOpen {
			return 80
		}
		return 30
	case 1:
		if bothOpen {
			return 15
		}
		return 5
	default:
		return 0
	}
}
