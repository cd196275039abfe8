package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hexwatch-backend/internal/model"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// ErrInvalidPiece is returned for records without an item identity.
var ErrInvalidPiece = errors.New("piece has no item uuid")

// inChunk keeps IN lists below SQLite's bound-variable limit.
const inChunk = 500

// Store defines the interface for all database operations.
type Store interface {
	// Upsert inserts p, or replaces owner, location and last_seen of the
	// stored record when p is not older than it.
	Upsert(ctx context.Context, p model.Piece) error
	// UpsertBatch has the same outcome as calling Upsert for each piece in
	// order, inside one transaction.
	UpsertBatch(ctx context.Context, pieces []model.Piece) error

	Get(ctx context.Context, itemUUID string) (model.Piece, error)
	FindByColor(ctx context.Context, hex, excludingUUID string) ([]model.Piece, error)
	FindByOwner(ctx context.Context, owner string) ([]model.Piece, error)
	FindByHexes(ctx context.Context, hexes []string) ([]model.Piece, error)
	All(ctx context.Context) ([]model.Piece, error)
	// Duplicates returns records whose hex is shared. With an owner, only
	// hexes that owner holds and that more than one owner has are returned.
	Duplicates(ctx context.Context, owner string) ([]model.Piece, error)

	LoadCursor(ctx context.Context, name string) (int64, bool, error)
	// SaveCursor persists value unless the stored cursor is already ahead.
	SaveCursor(ctx context.Context, name string, value int64) error

	PutSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	// SubscriptionsWithin returns subscribers whose threshold admits score.
	SubscriptionsWithin(ctx context.Context, score float64) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
	mu sync.Mutex // serialises ledger writes
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Upsert(ctx context.Context, p model.Piece) error {
	return s.UpsertBatch(ctx, []model.Piece{p})
}

func (s *gormStore) UpsertBatch(ctx context.Context, pieces []model.Piece) error {
	folded, order, err := foldPieces(pieces)
	if err != nil {
		return err
	}
	if len(folded) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := lastSeenByUUID(tx, order)
		if err != nil {
			return fmt.Errorf("failed to look up existing pieces: %w", err)
		}

		var inserts []model.Piece
		for _, id := range order {
			p := folded[id]
			current, exists := stored[id]
			if !exists {
				inserts = append(inserts, *p)
				continue
			}
			if p.LastSeen < current {
				continue
			}
			if err := tx.Model(&model.Piece{}).
				Where("item_uuid = ? AND last_seen <= ?", id, p.LastSeen).
				Updates(map[string]any{
					"owner":     p.Owner,
					"location":  p.Location,
					"last_seen": p.LastSeen,
				}).Error; err != nil {
				return fmt.Errorf("failed to update piece %s: %w", id, err)
			}
		}

		if len(inserts) > 0 {
			if err := tx.CreateInBatches(&inserts, 100).Error; err != nil {
				return fmt.Errorf("failed to insert %d pieces: %w", len(inserts), err)
			}
		}
		return nil
	})
}

// foldPieces collapses repeated identities the way sequential upserts would:
// kind and hex stay from the first occurrence, ownership comes from the
// latest occurrence that is not older than the running value.
func foldPieces(pieces []model.Piece) (map[string]*model.Piece, []string, error) {
	folded := make(map[string]*model.Piece, len(pieces))
	order := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if p.ItemUUID == "" {
			return nil, nil, ErrInvalidPiece
		}
		p.HexCode = strings.ToUpper(p.HexCode)

		f, ok := folded[p.ItemUUID]
		if !ok {
			cp := p
			folded[p.ItemUUID] = &cp
			order = append(order, p.ItemUUID)
			continue
		}
		if p.LastSeen >= f.LastSeen {
			f.Owner, f.Location, f.LastSeen = p.Owner, p.Location, p.LastSeen
		}
	}
	return folded, order, nil
}

func lastSeenByUUID(tx *gorm.DB, ids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		var rows []model.Piece
		if err := tx.Select("item_uuid", "last_seen").
			Where("item_uuid IN ?", ids[start:end]).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ItemUUID] = r.LastSeen
		}
	}
	return out, nil
}

func (s *gormStore) Get(ctx context.Context, itemUUID string) (model.Piece, error) {
	var p model.Piece
	err := s.db.WithContext(ctx).First(&p, "item_uuid = ?", itemUUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *gormStore) FindByColor(ctx context.Context, hex, excludingUUID string) ([]model.Piece, error) {
	var pieces []model.Piece
	err := s.db.WithContext(ctx).
		Where("hex_code = ? AND item_uuid <> ?", strings.ToUpper(hex), excludingUUID).
		Order("last_seen DESC").
		Find(&pieces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pieces by color: %w", err)
	}
	return pieces, nil
}

func (s *gormStore) FindByOwner(ctx context.Context, owner string) ([]model.Piece, error) {
	var pieces []model.Piece
	if err := s.db.WithContext(ctx).Where("owner = ?", owner).Order("last_seen DESC").Find(&pieces).Error; err != nil {
		return nil, fmt.Errorf("failed to find pieces by owner: %w", err)
	}
	return pieces, nil
}

func (s *gormStore) FindByHexes(ctx context.Context, hexes []string) ([]model.Piece, error) {
	var pieces []model.Piece
	for start := 0; start < len(hexes); start += inChunk {
		end := min(start+inChunk, len(hexes))
		var chunk []model.Piece
		if err := s.db.WithContext(ctx).
			Where("hex_code IN ?", hexes[start:end]).
			Order("hex_code, item_uuid").
			Find(&chunk).Error; err != nil {
			return nil, fmt.Errorf("failed to find pieces by hexes: %w", err)
		}
		pieces = append(pieces, chunk...)
	}
	return pieces, nil
}

func (s *gormStore) All(ctx context.Context) ([]model.Piece, error) {
	var pieces []model.Piece
	if err := s.db.WithContext(ctx).Order("item_uuid").Find(&pieces).Error; err != nil {
		return nil, fmt.Errorf("failed to list pieces: %w", err)
	}
	return pieces, nil
}

func (s *gormStore) Duplicates(ctx context.Context, owner string) ([]model.Piece, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&model.Piece{})
	if owner == "" {
		shared := db.Model(&model.Piece{}).Select("hex_code").Group("hex_code").Having("COUNT(*) > 1")
		q = q.Where("hex_code IN (?)", shared)
	} else {
		owned := db.Model(&model.Piece{}).Select("hex_code").Where("owner = ?", owner)
		shared := db.Model(&model.Piece{}).Select("hex_code").Group("hex_code").Having("COUNT(DISTINCT owner) > 1")
		q = q.Where("hex_code IN (?)", owned).Where("hex_code IN (?)", shared)
	}

	var pieces []model.Piece
	if err := q.Order("hex_code, last_seen DESC").Find(&pieces).Error; err != nil {
		return nil, fmt.Errorf("failed to find duplicates: %w", err)
	}
	return pieces, nil
}

func (s *gormStore) LoadCursor(ctx context.Context, name string) (int64, bool, error) {
	var c model.ScanCursor
	err := s.db.WithContext(ctx).First(&c, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cursor %s: %w", name, err)
	}
	return c.Value, true, nil
}

func (s *gormStore) SaveCursor(ctx context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := model.ScanCursor{Name: name, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "scan_cursors.value < excluded.value"},
		}},
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", name, err)
	}
	return nil
}

func (s *gormStore) PutSubscription(ctx context.Context, sub model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "max_distance"}),
	}).Create(&sub).Error
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, ErrNotFound
	}
	return sub, err
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

func (s *gormStore) SubscriptionsWithin(ctx context.Context, score float64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("max_distance >= ?", score).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	return subs, nil
}
