// Package database 用 SQLite 保存通知投递记录和订阅源基线。
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/podnotify/internal/logger"
	_ "modernc.org/sqlite"
)

// schema 按版本顺序排列，下标 i 的迁移把 user_version 从 i 升到 i+1。
// 已发布的迁移不可修改，只能追加。
var schema = [][]string{
	{
		`CREATE TABLE deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feed_url TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			delivery_id TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX idx_deliveries_feed_url ON deliveries(feed_url)`,
		`CREATE INDEX idx_deliveries_created_at ON deliveries(created_at)`,
	},
	{
		`CREATE TABLE baselines (
			feed_url TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

// DB 是 SQLite 数据库连接，保存投递记录和订阅源基线。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, errors.New("数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 各订阅源协程共用一个连接，写入串行化
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("执行 %s 失败: %w", p, err)
		}
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Version 返回当前 schema 版本。
func (db *DB) Version() (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("读取 schema 版本失败: %w", err)
	}
	return v, nil
}

// Migrate 依次执行尚未应用的迁移，每个版本一个事务。可重复调用。
func (db *DB) Migrate() error {
	current, err := db.Version()
	if err != nil {
		return err
	}
	if current > len(schema) {
		return fmt.Errorf("数据库 schema 版本 %d 高于程序支持的 %d", current, len(schema))
	}

	for v := current; v < len(schema); v++ {
		if err := db.migrateTo(v+1, schema[v]); err != nil {
			return err
		}
	}

	if current < len(schema) {
		logger.Infof("[database] 数据库迁移完成: 版本 %d -> %d", current, len(schema))
	}
	return nil
}

func (db *DB) migrateTo(version int, stmts []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("开始迁移事务失败: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("数据库迁移到版本 %d 失败: %w", version, err)
		}
	}
	// PRAGMA 不支持占位符
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("更新 schema 版本失败: %w", err)
	}
	return tx.Commit()
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
