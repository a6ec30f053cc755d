package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oakfield/servicelog/internal/model"
)

// metaTable parameterizes the meta engine so records and identity users share
// one implementation.
type metaTable struct {
	table       string
	ownerColumn string
}

var (
	recordMeta = metaTable{table: "record_meta", ownerColumn: "record_id"}
	userMeta   = metaTable{table: "user_meta", ownerColumn: "user_id"}
)

// coreInternalKeys are the metadata keys reserved for core fields' own
// storage under the "_" prefix convention. They are always excluded from the
// generic metadata view, in every store.
var coreInternalKeys = []string{
	"_owner_id", "_parent_id", "_status", "_title", "_body", "_excerpt",
	"_created_at", "_updated_at",
}

// internalKeySet unions the core conventions with a store's own internal
// key list.
func internalKeySet(storeKeys []string) map[string]bool {
	set := make(map[string]bool, len(coreInternalKeys)+len(storeKeys))
	for _, k := range coreInternalKeys {
		set[k] = true
	}
	for _, k := range storeKeys {
		set[k] = true
	}
	return set
}

// readMeta fetches all metadata rows for a record ordered by row id, with
// internal keys filtered out.
func readMeta(ctx context.Context, db executor, mt metaTable, ownerID int64, internal map[string]bool) ([]model.MetaRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, key, value FROM `+mt.table+`
		WHERE `+mt.ownerColumn+` = $1
		ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	var out []model.MetaRow
	for rows.Next() {
		var m model.MetaRow
		if err := rows.Scan(&m.ID, &m.Key, &m.Value); err != nil {
			return nil, fmt.Errorf("scan meta row: %w", err)
		}
		if internal[m.Key] {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// metaValue reads the first row for a key, returning its row id. Missing rows
// are not an error; ok reports presence.
func metaValue(ctx context.Context, db executor, mt metaTable, ownerID int64, key string) (value string, rowID int64, ok bool, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT id, value FROM `+mt.table+`
		WHERE `+mt.ownerColumn+` = $1 AND key = $2
		ORDER BY id LIMIT 1`,
		ownerID, key,
	).Scan(&rowID, &value)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("read meta value: %w", err)
	}
	return value, rowID, true, nil
}

// storedMetaKeys returns the set of keys that exist in storage for a record.
// propsToUpdate uses it for the first-write-wins rule.
func storedMetaKeys(ctx context.Context, db executor, mt metaTable, ownerID int64) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT key FROM `+mt.table+`
		WHERE `+mt.ownerColumn+` = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("stored meta keys: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan meta key: %w", err)
		}
		set[k] = true
	}
	return set, rows.Err()
}

// addMetaRow always appends a new row and returns its id.
func addMetaRow(ctx context.Context, db executor, mt metaTable, ownerID int64, key, value string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO `+mt.table+` (`+mt.ownerColumn+`, key, value)
		VALUES ($1, $2, $3)
		RETURNING id`,
		ownerID, key, value,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add meta: %w", err)
	}
	return id, nil
}

// updateMetaRow updates the row with the given id.
func updateMetaRow(ctx context.Context, db executor, mt metaTable, rowID int64, key, value string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE `+mt.table+` SET key = $2, value = $3 WHERE id = $1`,
		rowID, key, value,
	)
	if err != nil {
		return fmt.Errorf("update meta: %w", err)
	}
	return nil
}

// upsertMetaByKey updates the first row with the given key, or inserts one
// when none exists.
func upsertMetaByKey(ctx context.Context, db executor, mt metaTable, ownerID int64, key, value string) error {
	_, rowID, ok, err := metaValue(ctx, db, mt, ownerID, key)
	if err != nil {
		return err
	}
	if ok {
		return updateMetaRow(ctx, db, mt, rowID, key, value)
	}
	_, err = addMetaRow(ctx, db, mt, ownerID, key, value)
	return err
}

// deleteMetaRow removes the row with the given id.
func deleteMetaRow(ctx context.Context, db executor, mt metaTable, rowID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM `+mt.table+` WHERE id = $1`, rowID)
	if err != nil {
		return fmt.Errorf("delete meta: %w", err)
	}
	return nil
}

// deleteMetaByKey removes every row with the given key for a record.
func deleteMetaByKey(ctx context.Context, db executor, mt metaTable, ownerID int64, key string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM `+mt.table+`
		WHERE `+mt.ownerColumn+` = $1 AND key = $2`,
		ownerID, key,
	)
	if err != nil {
		return fmt.Errorf("delete meta by key: %w", err)
	}
	return nil
}

// propsToUpdate selects which typed props to write. On create the full key
// map is written. On update, only props with a pending change are written,
// plus props whose key has never reached storage at all (first-write-wins for
// fields introduced after initial creation).
func propsToUpdate(rec model.Persistable, keyMap map[model.Field]string, forCreate bool, stored map[string]bool) map[model.Field]string {
	if forCreate {
		return keyMap
	}
	out := make(map[model.Field]string)
	base := rec.Base()
	for f, key := range keyMap {
		if base.Changed(f) || !stored[key] {
			out[f] = key
		}
	}
	return out
}

// saveOpenMeta persists the record's pending open-metadata operations:
// appended rows get inserted, dirty rows updated, and removed row ids
// deleted. The in-memory record is not touched until the returned apply
// function runs, so a rolled-back transaction leaves its pending state
// intact for retry.
func saveOpenMeta(ctx context.Context, db executor, mt metaTable, rec *model.Record, ownerID int64) (apply func(), err error) {
	for _, rowID := range rec.PendingMetaDeletes() {
		if err := deleteMetaRow(ctx, db, mt, rowID); err != nil {
			return nil, err
		}
	}

	assigned := make(map[int]int64)
	var cleaned []int
	for i := range rec.Meta {
		m := rec.Meta[i]
		if !m.Dirty {
			continue
		}
		if m.ID == 0 {
			id, err := addMetaRow(ctx, db, mt, ownerID, m.Key, m.Value)
			if err != nil {
				return nil, err
			}
			assigned[i] = id
		} else if err := updateMetaRow(ctx, db, mt, m.ID, m.Key, m.Value); err != nil {
			return nil, err
		}
		cleaned = append(cleaned, i)
	}

	return func() {
		for i, id := range assigned {
			rec.Meta[i].ID = id
		}
		for _, i := range cleaned {
			rec.Meta[i].Dirty = false
		}
	}, nil
}
