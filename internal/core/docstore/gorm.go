package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quiz-api/pkg/utils"
)

// documentModel 一行一个文档，data 存 JSON，version 做乐观锁
type documentModel struct {
	Collection string    `gorm:"primaryKey;size:64"`
	ID         string    `gorm:"primaryKey;size:64"`
	Data       string    `gorm:"type:text;not null"`
	Version    int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (documentModel) TableName() string { return "documents" }

func (m *documentModel) toDocument() (*Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", m.Collection, m.ID, err)
	}
	return &Document{
		Ref:        Ref{Collection: m.Collection, ID: m.ID},
		Version:    m.Version,
		CreateTime: m.CreatedAt.UTC(),
		UpdateTime: m.UpdatedAt.UTC(),
		data:       data,
	}, nil
}

func fromDocument(d *Document) (*documentModel, error) {
	b, err := json.Marshal(d.data)
	if err != nil {
		return nil, err
	}
	return &documentModel{
		Collection: d.Ref.Collection,
		ID:         d.Ref.ID,
		Data:       string(b),
		Version:    d.Version,
		CreatedAt:  d.CreateTime,
		UpdatedAt:  d.UpdateTime,
	}, nil
}

// Gorm stores documents in a SQL table (postgres / mysql / sqlite).
type Gorm struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate 建表（documents）
func (g *Gorm) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&documentModel{})
}

func (g *Gorm) Create(ctx context.Context, collection string, data Fields) (*Document, error) {
	if collection == "" {
		return nil, ErrInvalidRef
	}
	now := g.now()
	norm, err := normalize(data, now)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Ref:        Ref{Collection: collection, ID: utils.NewIDAt(now)},
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
		data:       norm,
	}
	if err := (&gormBackend{db: g.db.WithContext(ctx)}).insert(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (g *Gorm) Get(ctx context.Context, ref Ref) (*Document, error) {
	if !ref.valid() {
		return nil, ErrInvalidRef
	}
	doc, err := (&gormBackend{db: g.db.WithContext(ctx)}).load(ref)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return doc, nil
}

func (g *Gorm) List(ctx context.Context, q Query) ([]*Document, error) {
	tx := g.db.WithContext(ctx).
		Where("collection = ?", q.Collection).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: q.Desc},
			{Column: clause.Column{Name: "id"}, Desc: q.Desc},
		}})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []documentModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDocument()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RunTransaction sqlite 的锁冲突（BEGIN / COMMIT 阶段）也按 ErrConflict 返回，交给 Runner 重试
func (g *Gorm) RunTransaction(ctx context.Context, fn TxFunc) error {
	err := g.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &gormTx{backend: &gormBackend{db: db}, txState: newTxState()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit(tx.backend, g.now())
	})
	return busyAsConflict(err)
}

func (g *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	backend *gormBackend
	txState
}

func (t *gormTx) Get(ref Ref) (*Document, error) {
	doc, ok, err := t.cached(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		if doc, err = t.backend.load(ref); err != nil {
			return nil, err
		}
		t.observe(ref, doc)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return doc, nil
}

func (t *gormTx) Set(ref Ref, data Fields) error    { return t.stage(ref, opSet, data) }
func (t *gormTx) Update(ref Ref, data Fields) error { return t.stage(ref, opUpdate, data) }
func (t *gormTx) Delete(ref Ref) error              { return t.stage(ref, opDelete, nil) }

// gormBackend 的写入都带 version 条件，影响行数为 0 即视为冲突
type gormBackend struct{ db *gorm.DB }

func (b *gormBackend) load(ref Ref) (*Document, error) {
	var m documentModel
	err := b.db.Where("collection = ? AND id = ?", ref.Collection, ref.ID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, busyAsConflict(err)
	}
	return m.toDocument()
}

func (b *gormBackend) insert(doc *Document) error {
	m, err := fromDocument(doc)
	if err != nil {
		return err
	}
	if err := b.db.Create(m).Error; err != nil {
		if isDupKey(err) {
			return fmt.Errorf("%w: %s already exists", ErrConflict, doc.Ref)
		}
		return busyAsConflict(err)
	}
	return nil
}

func (b *gormBackend) replace(doc *Document, expect int64) error {
	m, err := fromDocument(doc)
	if err != nil {
		return err
	}
	res := b.db.Model(&documentModel{}).
		Where("collection = ? AND id = ? AND version = ?", m.Collection, m.ID, expect).
		Updates(map[string]any{"data": m.Data, "version": m.Version, "updated_at": m.UpdatedAt})
	if res.Error != nil {
		return busyAsConflict(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s changed", ErrConflict, doc.Ref)
	}
	return nil
}

func (b *gormBackend) remove(ref Ref, expect int64) error {
	res := b.db.
		Where("collection = ? AND id = ? AND version = ?", ref.Collection, ref.ID, expect).
		Delete(&documentModel{})
	if res.Error != nil {
		return busyAsConflict(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s changed", ErrConflict, ref)
	}
	return nil
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 各驱动的报错文本不统一，兜底按关键字判断
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}

// busyAsConflict sqlite 多连接时，并发写事务会拿到 SQLITE_BUSY / SQLITE_LOCKED
// （含 WAL 下快照过期的 BUSY_SNAPSHOT），这和版本号不匹配一样，重跑即可
func busyAsConflict(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || !isBusy(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked")
}
