package docstore

import (
	"database/sql"

	"github.com/adalundhe/docgraph/core/database"
)

var migrations = []database.Migration{
	{
		Version:     1,
		Description: "create indices and documents",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS indices (
					name       TEXT PRIMARY KEY,
					created_at INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS documents (
					idx      TEXT NOT NULL,
					id       TEXT NOT NULL,
					doc_type TEXT NOT NULL,
					source   TEXT NOT NULL,
					version  INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (idx, id)
				);

				CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(idx, doc_type);
			`)
			return err
		},
	},
}

const (
	sqlInsertIndex = `INSERT INTO indices (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`
	sqlListIndices = `SELECT name FROM indices ORDER BY name`

	sqlCreateDocument = `INSERT INTO documents (idx, id, doc_type, source, version) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(idx, id) DO NOTHING`
	sqlGetDocument    = `SELECT doc_type, source, version FROM documents WHERE idx = ? AND id = ?`
	sqlUpdateDocument = `UPDATE documents SET source = ?, version = version + 1 WHERE idx = ? AND id = ?`
	sqlDeleteDocument = `DELETE FROM documents WHERE idx = ? AND id = ?`
)
