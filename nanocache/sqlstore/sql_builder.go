package sqlstore

import (
	"github.com/Masterminds/squirrel"
)

const entityTable = "entities"

var entityColumns = []string{"id", "parent_id", "is_default", "payload", "created_at", "updated_at"}

// sqlBuilder wraps squirrel so every statement uses bound parameters
type sqlBuilder struct {
	sq squirrel.StatementBuilderType
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// selectEntities lists a collection in creation order, optionally narrowed by where
func (b *sqlBuilder) selectEntities(collection string, where squirrel.Eq) (string, []interface{}, error) {
	cond := squirrel.Eq{"collection": collection}
	for k, v := range where {
		cond[k] = v
	}
	return b.sq.Select(entityColumns...).From(entityTable).Where(cond).OrderBy("seq").ToSql()
}

func (b *sqlBuilder) countEntities(collection, id string) (string, []interface{}, error) {
	return b.sq.Select("COUNT(*)").From(entityTable).
		Where(squirrel.Eq{"collection": collection, "id": id}).ToSql()
}

func (b *sqlBuilder) insertEntity(collection string, row entityRow) squirrel.Sqlizer {
	return b.sq.Insert(entityTable).
		Columns(append([]string{"collection"}, entityColumns...)...).
		Values(collection, row.ID, row.ParentID, row.IsDefault, row.Payload, row.CreatedAt, row.UpdatedAt)
}

func (b *sqlBuilder) updateEntity(collection string, row entityRow) squirrel.Sqlizer {
	return b.sq.Update(entityTable).
		Set("parent_id", row.ParentID).
		Set("is_default", row.IsDefault).
		Set("payload", row.Payload).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"collection": collection, "id": row.ID})
}

// clearDefaults flips every other default of the collection to false
func (b *sqlBuilder) clearDefaults(collection, keep, now string) squirrel.Sqlizer {
	return b.sq.Update(entityTable).
		Set("is_default", 0).
		Set("updated_at", now).
		Where(squirrel.Eq{"collection": collection, "is_default": 1}).
		Where(squirrel.NotEq{"id": keep})
}
