package outputstore

// Schema creates the output store tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    task_id    TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outputs (
    agg_key     TEXT PRIMARY KEY,
    task_id     TEXT NOT NULL,
    document_id TEXT NOT NULL,
    output      TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outputs_document ON outputs(document_id);

CREATE TABLE IF NOT EXISTS exports (
    export_id   TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    mode        TEXT NOT NULL,
    sheets      TEXT NOT NULL,
    rows        INTEGER NOT NULL,
    size_bytes  INTEGER NOT NULL,
    placeholder INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exports_document ON exports(document_id, created_at);
`
