package storedb

// upgradeScript is one step in the schema's linear history. from/to are
// user_version values; sql runs once, inside one transaction, whenever the
// database's current user_version is at or below `from`.
type upgradeScript struct {
	from int
	to   int
	name string
	sql  string
}

// upgradeScripts is ordered oldest-first and mirrors the table layout in
// spec §6: one installed/required_by pair per backend that shares installs
// (mise, github-release, cargo, go, homebrew formula + tap), a version-cache
// table per backend that resolves ranges over a fetched list, plus the
// shared env_versions/env_history/workdir_env/trust/prompt tables.
var upgradeScripts = []upgradeScript{
	{
		from: 0,
		to:   1,
		name: "asdf-era schema (pre-mise rename)",
		sql: `
CREATE TABLE IF NOT EXISTS metadata (
	key    TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS env_versions (
	env_version_id   TEXT PRIMARY KEY,
	workdir_id       TEXT NOT NULL,
	config_hash      TEXT NOT NULL,
	versions_json    TEXT NOT NULL,
	paths_json       TEXT NOT NULL,
	env_vars_json    TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_assigned_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workdir_env (
	workdir_id       TEXT PRIMARY KEY,
	path             TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id),
	updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS env_history (
	env_history_id   TEXT PRIMARY KEY,
	workdir_id       TEXT NOT NULL,
	env_version_id   TEXT NOT NULL,
	head_sha         TEXT,
	used_from_date   INTEGER NOT NULL,
	used_until_date  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_env_history_open ON env_history(workdir_id) WHERE used_until_date IS NULL;
CREATE INDEX IF NOT EXISTS idx_env_history_workdir ON env_history(workdir_id, used_from_date DESC);

CREATE TABLE IF NOT EXISTS asdf_plugins (
	plugin           TEXT PRIMARY KEY,
	repository       TEXT
);

CREATE TABLE IF NOT EXISTS asdf_installed (
	tool             TEXT NOT NULL,
	version          TEXT NOT NULL,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (tool, version)
);

CREATE TABLE IF NOT EXISTS asdf_installed_required_by (
	tool             TEXT NOT NULL,
	version          TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (tool, version, env_version_id),
	FOREIGN KEY (tool, version) REFERENCES asdf_installed(tool, version) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS workdir_trusted (
	workdir_id       TEXT PRIMARY KEY,
	trusted_at       INTEGER NOT NULL
);
`,
	},
	{
		from: 1,
		to:   2,
		name: "upgrade_v1_to_v2: asdf -> mise rename, golang -> go, nodejs -> node",
		sql: `
CREATE TABLE mise_plugins (
	plugin           TEXT PRIMARY KEY,
	repository       TEXT
);
INSERT INTO mise_plugins SELECT
	CASE plugin WHEN 'golang' THEN 'go' WHEN 'nodejs' THEN 'node' ELSE plugin END,
	repository
FROM asdf_plugins;

CREATE TABLE mise_installed (
	tool             TEXT NOT NULL,
	version          TEXT NOT NULL,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (tool, version)
);
INSERT INTO mise_installed SELECT
	CASE tool WHEN 'golang' THEN 'go' WHEN 'nodejs' THEN 'node' ELSE tool END,
	version, install_path, created_at, last_required_at
FROM asdf_installed;

CREATE TABLE mise_installed_required_by (
	tool             TEXT NOT NULL,
	version          TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (tool, version, env_version_id),
	FOREIGN KEY (tool, version) REFERENCES mise_installed(tool, version) ON DELETE CASCADE
);
INSERT INTO mise_installed_required_by SELECT
	CASE tool WHEN 'golang' THEN 'go' WHEN 'nodejs' THEN 'node' ELSE tool END,
	version, env_version_id
FROM asdf_installed_required_by;

DROP TABLE asdf_installed_required_by;
DROP TABLE asdf_installed;
DROP TABLE asdf_plugins;

CREATE TABLE IF NOT EXISTS github_release_installed (
	owner            TEXT NOT NULL,
	name             TEXT NOT NULL,
	version          TEXT NOT NULL,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (owner, name, version)
);
CREATE TABLE IF NOT EXISTS github_release_required_by (
	owner            TEXT NOT NULL,
	name             TEXT NOT NULL,
	version          TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (owner, name, version, env_version_id),
	FOREIGN KEY (owner, name, version) REFERENCES github_release_installed(owner, name, version) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS github_releases (
	owner            TEXT NOT NULL,
	name             TEXT NOT NULL,
	versions_json    TEXT NOT NULL,
	fetched_at       INTEGER NOT NULL,
	PRIMARY KEY (owner, name)
);

CREATE TABLE IF NOT EXISTS cargo_installed (
	crate            TEXT NOT NULL,
	version          TEXT NOT NULL,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (crate, version)
);
CREATE TABLE IF NOT EXISTS cargo_install_required_by (
	crate            TEXT NOT NULL,
	version          TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (crate, version, env_version_id),
	FOREIGN KEY (crate, version) REFERENCES cargo_installed(crate, version) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS cargo_versions (
	crate            TEXT PRIMARY KEY,
	versions_json    TEXT NOT NULL,
	fetched_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS go_installed (
	module_path      TEXT NOT NULL,
	version          TEXT NOT NULL,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (module_path, version)
);
CREATE TABLE IF NOT EXISTS go_install_required_by (
	module_path      TEXT NOT NULL,
	version          TEXT NOT NULL,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (module_path, version, env_version_id),
	FOREIGN KEY (module_path, version) REFERENCES go_installed(module_path, version) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS go_versions (
	module_path      TEXT PRIMARY KEY,
	versions_json    TEXT NOT NULL,
	fetched_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS homebrew_install (
	formula          TEXT NOT NULL,
	version          TEXT,
	is_cask          INTEGER NOT NULL DEFAULT 0,
	install_path     TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL,
	PRIMARY KEY (formula, version, is_cask)
);
CREATE TABLE IF NOT EXISTS homebrew_install_required_by (
	formula          TEXT NOT NULL,
	version          TEXT,
	is_cask          INTEGER NOT NULL DEFAULT 0,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (formula, version, is_cask, env_version_id),
	FOREIGN KEY (formula, version, is_cask) REFERENCES homebrew_install(formula, version, is_cask) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS homebrew_tap (
	tap              TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	last_required_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS homebrew_tap_required_by (
	tap              TEXT NOT NULL REFERENCES homebrew_tap(tap) ON DELETE CASCADE,
	env_version_id   TEXT NOT NULL REFERENCES env_versions(env_version_id) ON DELETE CASCADE,
	PRIMARY KEY (tap, env_version_id)
);

CREATE TABLE IF NOT EXISTS prompts (
	prompt_id        TEXT PRIMARY KEY,
	scope_org        TEXT,
	scope_repo       TEXT,
	question_id      TEXT NOT NULL,
	answer_json      TEXT NOT NULL,
	answered_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workdir_fingerprints (
	workdir_id       TEXT NOT NULL,
	config_file      TEXT NOT NULL,
	modtime          INTEGER NOT NULL,
	PRIMARY KEY (workdir_id, config_file)
);
`,
	},
	{
		from: 2,
		to:   3,
		name: "upgrade_v2_to_v3: clear github_releases version cache",
		sql: `DELETE FROM github_releases;`,
	},
}
