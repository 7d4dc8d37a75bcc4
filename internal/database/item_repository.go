package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/example/vocabreview/pkg/models"
)

// ItemRepository handles database operations for vocabulary items
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new repository instance
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// LoadItems returns the items of a level in dataset order.
func (r *ItemRepository) LoadItems(ctx context.Context, level int) ([]models.Item, error) {
	items := []models.Item{}
	query := r.db.Rebind(`
		SELECT id, level, text, pronunciation, meaning, explanation
		FROM items WHERE level = ?
		ORDER BY position, id`)
	if err := r.db.SelectContext(ctx, &items, query, level); err != nil {
		return nil, errors.Wrap(err, "failed to get items by level")
	}
	return items, nil
}

// GetByID returns one item, or nil if it does not exist.
func (r *ItemRepository) GetByID(ctx context.Context, level int, id string) (*models.Item, error) {
	var items []models.Item
	query := r.db.Rebind(`
		SELECT id, level, text, pronunciation, meaning, explanation
		FROM items WHERE level = ? AND id = ?`)
	if err := r.db.SelectContext(ctx, &items, query, level, id); err != nil {
		return nil, errors.Wrap(err, "failed to get item by ID")
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Upsert inserts the item or updates its texts. It reports whether the item was new.
// New items are appended to the end of their level.
func (r *ItemRepository) Upsert(ctx context.Context, item models.Item) (bool, error) {
	existing, err := r.GetByID(ctx, item.Level, item.ID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		query := r.db.Rebind(`
			UPDATE items SET text = ?, pronunciation = ?, meaning = ?, explanation = ?
			WHERE level = ? AND id = ?`)
		_, err := r.db.ExecContext(ctx, query,
			item.Text, item.Pronunciation, item.Meaning, item.Explanation, item.Level, item.ID)
		if err != nil {
			return false, errors.Wrap(err, "failed to update item")
		}
		return false, nil
	}

	query := r.db.Rebind(`
		INSERT INTO items (level, id, text, pronunciation, meaning, explanation, position)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM items WHERE level = ?))`)
	_, err = r.db.ExecContext(ctx, query,
		item.Level, item.ID, item.Text, item.Pronunciation, item.Meaning, item.Explanation, item.Level)
	if err != nil {
		return false, errors.Wrap(err, "failed to create item")
	}
	return true, nil
}

// Delete removes an item. Mastery records of the item are left alone.
func (r *ItemRepository) Delete(ctx context.Context, level int, id string) error {
	query := r.db.Rebind("DELETE FROM items WHERE level = ? AND id = ?")
	if _, err := r.db.ExecContext(ctx, query, level, id); err != nil {
		return errors.Wrap(err, "failed to delete item")
	}
	return nil
}

// LevelCount is the number of items of one level.
type LevelCount struct {
	Level int `db:"level"`
	Count int `db:"count"`
}

// CountByLevel returns item counts per level, ascending by level.
func (r *ItemRepository) CountByLevel(ctx context.Context) ([]LevelCount, error) {
	counts := []LevelCount{}
	err := r.db.SelectContext(ctx, &counts,
		"SELECT level, COUNT(*) AS count FROM items GROUP BY level ORDER BY level")
	if err != nil {
		return nil, errors.Wrap(err, "failed to count items")
	}
	return counts, nil
}
