// schema.go

package db

// 统一的数据库表结构定义

// CreateAllTablesSQL 创建所有表的SQL语句
const CreateAllTablesSQL = `
-- 玩家表
CREATE TABLE IF NOT EXISTS players (
    id SERIAL PRIMARY KEY,
    username VARCHAR(50) UNIQUE NOT NULL,
    password VARCHAR(64) NOT NULL,
    email VARCHAR(100) UNIQUE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,

    -- ELO与战绩统计
    elo_rating INT DEFAULT 1200,
    wins INT DEFAULT 0,
    losses INT DEFAULT 0,
    draws INT DEFAULT 0,
    current_streak INT DEFAULT 0,
    best_streak INT DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_players_elo ON players(elo_rating DESC);

-- 对局表
CREATE TABLE IF NOT EXISTS matches (
    id UUID PRIMARY KEY,
    mode VARCHAR(10) NOT NULL,
    black_player_id BIGINT REFERENCES players(id) ON DELETE SET NULL,
    white_player_id BIGINT REFERENCES players(id) ON DELETE SET NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'waiting',
    result VARCHAR(20),
    board_state JSONB DEFAULT '[]',
    move_history JSONB DEFAULT '[]',
    current_turn CHAR(1) DEFAULT 'X',
    winning_line JSONB,
    black_elo_before INT,
    white_elo_before INT,
    black_elo_change INT,
    white_elo_change INT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_matches_black ON matches(black_player_id);
CREATE INDEX IF NOT EXISTS idx_matches_white ON matches(white_player_id);
CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at DESC);
`
