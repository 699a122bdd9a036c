// repository.go

package models

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jacl-coder/Caro-Server/internal/elo"
	"github.com/jacl-coder/Caro-Server/pkg/db"
)

// PlayerRepository 玩家与对局的数据库访问层
type PlayerRepository struct{}

// NewPlayerRepository 创建数据库访问层
func NewPlayerRepository() *PlayerRepository {
	return &PlayerRepository{}
}

// GetPlayer 按ID查询玩家
func (r *PlayerRepository) GetPlayer(playerID int64) (*Player, error) {
	query := `
		SELECT id, username, email, elo_rating, wins, losses, draws,
		       current_streak, best_streak, created_at, updated_at
		FROM players
		WHERE id = $1
	`

	var p Player
	err := db.DB.QueryRow(query, playerID).Scan(
		&p.ID, &p.Username, &p.Email, &p.EloRating,
		&p.Wins, &p.Losses, &p.Draws,
		&p.CurrentStreak, &p.BestStreak,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetRank 查询玩家的ELO排名(1为最高)
func (r *PlayerRepository) GetRank(playerID int64) (int, error) {
	query := `
		SELECT COUNT(*) + 1
		FROM players
		WHERE elo_rating > (SELECT elo_rating FROM players WHERE id = $1)
	`

	var rank int
	if err := db.DB.QueryRow(query, playerID).Scan(&rank); err != nil {
		return 0, err
	}
	return rank, nil
}

// UpdateRating 写入玩家的新ELO分数
func (r *PlayerRepository) UpdateRating(playerID int64, newRating int) error {
	query := `
		UPDATE players
		SET elo_rating = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := db.DB.Exec(query, playerID, newRating)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyOutcome 更新玩家的胜负和统计
// withStreak为false时只累计胜负场次(人机模式)，不影响连胜记录。
func (r *PlayerRepository) ApplyOutcome(playerID int64, outcome elo.Outcome, withStreak bool) error {
	var query string

	switch outcome {
	case elo.Win:
		if withStreak {
			query = `
				UPDATE players
				SET wins = wins + 1,
				    current_streak = current_streak + 1,
				    best_streak = GREATEST(best_streak, current_streak + 1),
				    updated_at = CURRENT_TIMESTAMP
				WHERE id = $1
			`
		} else {
			query = `UPDATE players SET wins = wins + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
		}
	case elo.Loss:
		if withStreak {
			query = `
				UPDATE players
				SET losses = losses + 1, current_streak = 0, updated_at = CURRENT_TIMESTAMP
				WHERE id = $1
			`
		} else {
			query = `UPDATE players SET losses = losses + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
		}
	case elo.Draw:
		if withStreak {
			query = `
				UPDATE players
				SET draws = draws + 1, current_streak = 0, updated_at = CURRENT_TIMESTAMP
				WHERE id = $1
			`
		} else {
			query = `UPDATE players SET draws = draws + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
		}
	default:
		return fmt.Errorf("未知的对局结果: %s", outcome)
	}

	_, err := db.DB.Exec(query, playerID)
	return err
}

// InsertMatch 写入新对局记录
func (r *PlayerRepository) InsertMatch(record *MatchRecord) error {
	boardJSON, err := json.Marshal(record.BoardState)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(record.MoveHistory)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO matches (id, mode, black_player_id, white_player_id, status,
		                     board_state, move_history, current_turn,
		                     black_elo_before, white_elo_before)
		VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0), $5, $6, $7, $8,
		        NULLIF($9, 0), NULLIF($10, 0))
	`

	_, err = db.DB.Exec(query,
		record.ID, record.Mode, record.BlackPlayerID, record.WhitePlayerID,
		record.Status, boardJSON, historyJSON, record.CurrentTurn,
		record.BlackEloBefore, record.WhiteEloBefore,
	)
	return err
}

// FinishMatch 写入对局终态
func (r *PlayerRepository) FinishMatch(record *MatchRecord) error {
	boardJSON, err := json.Marshal(record.BoardState)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(record.MoveHistory)
	if err != nil {
		return err
	}
	var lineJSON []byte
	if record.WinningLine != nil {
		lineJSON, err = json.Marshal(record.WinningLine)
		if err != nil {
			return err
		}
	}

	query := `
		UPDATE matches
		SET status = $2, result = NULLIF($3, ''), board_state = $4,
		    move_history = $5, current_turn = $6, winning_line = $7,
		    black_elo_change = $8, white_elo_change = $9,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := db.DB.Exec(query,
		record.ID, record.Status, string(record.Result), boardJSON,
		historyJSON, record.CurrentTurn, lineJSON,
		record.BlackEloChange, record.WhiteEloChange,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetPlayerMatches 分页查询玩家的历史对局
func (r *PlayerRepository) GetPlayerMatches(playerID int64, limit, offset int) ([]PlayerMatchRecord, int, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM matches
		WHERE black_player_id = $1 OR white_player_id = $1
	`
	var total int
	if err := db.DB.QueryRow(countQuery, playerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT m.id, m.mode, m.result,
		       CASE WHEN m.black_player_id = $1 THEN COALESCE(w.username, '')
		            ELSE COALESCE(b.username, '') END AS opponent_name,
		       CASE WHEN m.black_player_id = $1 THEN COALESCE(m.black_elo_change, 0)
		            ELSE COALESCE(m.white_elo_change, 0) END AS elo_change,
		       m.created_at
		FROM matches m
		LEFT JOIN players b ON b.id = m.black_player_id
		LEFT JOIN players w ON w.id = m.white_player_id
		WHERE m.black_player_id = $1 OR m.white_player_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.DB.Query(query, playerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []PlayerMatchRecord
	for rows.Next() {
		var rec PlayerMatchRecord
		var result sql.NullString
		if err := rows.Scan(&rec.MatchID, &rec.Mode, &result,
			&rec.OpponentName, &rec.EloChange, &rec.CreatedAt); err != nil {
			continue
		}
		rec.Result = MatchResult(result.String)
		records = append(records, rec)
	}

	return records, total, nil
}
