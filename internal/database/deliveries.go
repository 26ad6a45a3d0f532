package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iabetor/podnotify/internal/podcast"
)

// Delivery 一次通知投递的记录。
type Delivery struct {
	ID         int64
	FeedURL    string
	Kind       string
	Message    string
	DeliveryID string
	Error      string
	CreatedAt  time.Time
}

// RecordDelivery 写入一条投递记录。
func (db *DB) RecordDelivery(ctx context.Context, d Delivery) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO deliveries (feed_url, kind, message, delivery_id, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.FeedURL, d.Kind, d.Message, d.DeliveryID, d.Error, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("写入投递记录失败: %w", err)
	}
	return nil
}

// RecentDeliveries 按时间倒序返回最近的投递记录。
func (db *DB) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, feed_url, kind, message, delivery_id, error, created_at
		 FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询投递记录失败: %w", err)
	}
	defer rows.Close()

	var result []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.FeedURL, &d.Kind, &d.Message, &d.DeliveryID, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取投递记录失败: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// SaveBaseline 保存订阅源的最新快照。
func (db *DB) SaveBaseline(ctx context.Context, snap podcast.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO baselines (feed_url, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(feed_url) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		snap.SourceID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	return nil
}

// LoadBaseline 读取订阅源的快照，不存在时返回 false。
func (db *DB) LoadBaseline(ctx context.Context, feedURL string) (podcast.Snapshot, bool, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT snapshot FROM baselines WHERE feed_url = ?`, feedURL).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return podcast.Snapshot{}, false, nil
	}
	if err != nil {
		return podcast.Snapshot{}, false, fmt.Errorf("读取快照失败: %w", err)
	}

	var snap podcast.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return podcast.Snapshot{}, false, fmt.Errorf("解析快照失败: %w", err)
	}
	return snap, true, nil
}
