package store

var schema = []string{
	`CREATE TABLE IF NOT EXISTS modules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		location TEXT,
		user TEXT,
		reason TEXT NOT NULL,
		depends TEXT,
		date TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		source TEXT,
		source_checksum TEXT,
		destination TEXT NOT NULL UNIQUE,
		destination_checksum TEXT,
		operation TEXT NOT NULL CHECK (operation IN ('link', 'copy', 'create', 'generate')),
		user TEXT,
		date TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_module ON files(module_id)`,
	`CREATE TABLE IF NOT EXISTS backups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		file_type TEXT NOT NULL CHECK (file_type IN ('link', 'regular', 'dummy')),
		content BLOB,
		link_source TEXT,
		owner TEXT NOT NULL,
		permissions INTEGER,
		checksum TEXT,
		date TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		UNIQUE (module_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		uuid TEXT NOT NULL UNIQUE,
		command TEXT NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_module_command ON tasks(module_id, command)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		command TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_module_command ON messages(module_id, command)`,
}
