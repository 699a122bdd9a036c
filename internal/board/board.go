// board.go

package board

import (
	"errors"
)

// Symbol 棋盘格状态
type Symbol int8

const (
	// Empty 空格
	Empty Symbol = 0
	// Black 黑方(先手，记号X)
	Black Symbol = 1
	// White 白方(后手，记号O)
	White Symbol = 2
)

var (
	// ErrCellOccupied 目标格已有棋子
	ErrCellOccupied = errors.New("目标格已被占用")
	// ErrOutOfBounds 坐标越界
	ErrOutOfBounds = errors.New("坐标超出棋盘范围")
)

// Mark 返回棋子的对外记号
func (s Symbol) Mark() string {
	switch s {
	case Black:
		return "X"
	case White:
		return "O"
	default:
		return ""
	}
}

// ParseMark 将对外记号解析为棋子
func ParseMark(mark string) Symbol {
	switch mark {
	case "X":
		return Black
	case "O":
		return White
	default:
		return Empty
	}
}

// Opponent 返回对方棋子
func (s Symbol) Opponent() Symbol {
	switch s {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Coord 棋盘坐标
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Board 固定大小的方形棋盘
type Board struct {
	size   int
	winLen int
	cells  [][]Symbol
	stones int
}

// 四条检测轴：横、竖、两条对角线
var axes = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// New 创建空棋盘
func New(size, winLength int) *Board {
	cells := make([][]Symbol, size)
	for i := range cells {
		cells[i] = make([]Symbol, size)
	}
	return &Board{
		size:   size,
		winLen: winLength,
		cells:  cells,
	}
}

// Size 返回棋盘边长
func (b *Board) Size() int {
	return b.size
}

// WinLength 返回连珠获胜长度
func (b *Board) WinLength() int {
	return b.winLen
}

// Get 返回指定格的状态，越界视为空
func (b *Board) Get(row, col int) Symbol {
	if !b.inBounds(row, col) {
		return Empty
	}
	return b.cells[row][col]
}

// ApplyMove 落子，目标格必须为空
func (b *Board) ApplyMove(row, col int, sym Symbol) error {
	if !b.inBounds(row, col) {
		return ErrOutOfBounds
	}
	if b.cells[row][col] != Empty {
		return ErrCellOccupied
	}
	b.cells[row][col] = sym
	b.stones++
	return nil
}

// CheckWin 检查刚落在(row, col)的棋子是否形成连珠
// 只检查经过该点的四条轴，单次检测与棋盘边长成线性关系。
// 返回按轴向排列的获胜坐标序列(最多前winLength个)，无连珠返回nil。
func (b *Board) CheckWin(row, col int, sym Symbol) []Coord {
	for _, axis := range axes {
		dr, dc := axis[0], axis[1]

		// 先沿负方向收集，反转后即为从一端到另一端的顺序
		var back []Coord
		r, c := row-dr, col-dc
		for b.inBounds(r, c) && b.cells[r][c] == sym {
			back = append(back, Coord{Row: r, Col: c})
			r -= dr
			c -= dc
		}

		line := make([]Coord, 0, len(back)+1)
		for i := len(back) - 1; i >= 0; i-- {
			line = append(line, back[i])
		}
		line = append(line, Coord{Row: row, Col: col})

		r, c = row+dr, col+dc
		for b.inBounds(r, c) && b.cells[r][c] == sym {
			line = append(line, Coord{Row: r, Col: c})
			r += dr
			c += dc
		}

		if len(line) >= b.winLen {
			return line[:b.winLen]
		}
	}

	return nil
}

// IsFull 检查棋盘是否已无空格
func (b *Board) IsFull() bool {
	return b.stones >= b.size*b.size
}

// EmptyCells 按行优先顺序返回所有空格坐标
func (b *Board) EmptyCells() []Coord {
	cells := make([]Coord, 0, b.size*b.size-b.stones)
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			if b.cells[r][c] == Empty {
				cells = append(cells, Coord{Row: r, Col: c})
			}
		}
	}
	return cells
}

// Snapshot 导出棋盘快照，空格为空字符串
func (b *Board) Snapshot() [][]string {
	snapshot := make([][]string, b.size)
	for r := 0; r < b.size; r++ {
		snapshot[r] = make([]string, b.size)
		for c := 0; c < b.size; c++ {
			snapshot[r][c] = b.cells[r][c].Mark()
		}
	}
	return snapshot
}

// FromSnapshot 从快照恢复棋盘
func FromSnapshot(snapshot [][]string, winLength int) *Board {
	b := New(len(snapshot), winLength)
	for r := range snapshot {
		for c := range snapshot[r] {
			if sym := ParseMark(snapshot[r][c]); sym != Empty {
				b.cells[r][c] = sym
				b.stones++
			}
		}
	}
	return b
}

// inBounds 检查坐标是否在棋盘内
func (b *Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.size && col >= 0 && col < b.size
}
