package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS articles (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	brand         TEXT NOT NULL DEFAULT '',
	size          TEXT NOT NULL DEFAULT '',
	condition     TEXT NOT NULL DEFAULT '',
	category_main TEXT NOT NULL DEFAULT '',
	category_sub  TEXT NOT NULL DEFAULT '',
	category_item TEXT NOT NULL DEFAULT '',
	price         NUMERIC(10,2) NOT NULL,
	color         TEXT NOT NULL DEFAULT '',
	material      TEXT NOT NULL DEFAULT '',
	photos        TEXT[] NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'draft',
	vinted_url    TEXT,
	published_at  TIMESTAMPTZ,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS publication_jobs (
	id            TEXT PRIMARY KEY,
	article_id    TEXT NOT NULL REFERENCES articles(id),
	status        TEXT NOT NULL DEFAULT 'pending',
	run_at        TIMESTAMPTZ NOT NULL,
	vinted_url    TEXT,
	error_message TEXT,
	claimed_by    TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_publication_jobs_due ON publication_jobs (status, run_at);

CREATE TABLE IF NOT EXISTS vinted_credentials (
	user_id            TEXT PRIMARY KEY,
	email              TEXT NOT NULL DEFAULT '',
	encrypted_password TEXT NOT NULL DEFAULT '',
	session            JSONB,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
