package store

import (
	"time"

	"github.com/uptrace/bun"
)

type moduleRow struct {
	bun.BaseModel `bun:"table:modules,alias:m"`

	ID       int64     `bun:"id,pk,autoincrement"`
	Name     string    `bun:"name,notnull,unique"`
	Location string    `bun:"location"`
	User     string    `bun:"user"`
	Reason   string    `bun:"reason,notnull"`
	Depends  *string   `bun:"depends"`
	Date     time.Time `bun:"date,notnull"`
}

type fileRow struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID                  int64     `bun:"id,pk,autoincrement"`
	ModuleID            int64     `bun:"module_id,notnull"`
	Source              *string   `bun:"source"`
	SourceChecksum      *string   `bun:"source_checksum"`
	Destination         string    `bun:"destination,notnull,unique"`
	DestinationChecksum *string   `bun:"destination_checksum"`
	Operation           string    `bun:"operation,notnull"`
	User                string    `bun:"user"`
	Date                time.Time `bun:"date,notnull"`

	ModuleName string `bun:"module_name,scanonly"`
}

type backupRow struct {
	bun.BaseModel `bun:"table:backups,alias:b"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Path        string    `bun:"path,notnull,unique"`
	FileType    string    `bun:"file_type,notnull"`
	Content     []byte    `bun:"content"`
	LinkSource  *string   `bun:"link_source"`
	Owner       string    `bun:"owner,notnull"`
	Permissions *int64    `bun:"permissions"`
	Checksum    *string   `bun:"checksum"`
	Date        time.Time `bun:"date,notnull"`
}

type packageRow struct {
	bun.BaseModel `bun:"table:packages,alias:p"`

	ID       int64  `bun:"id,pk,autoincrement"`
	ModuleID int64  `bun:"module_id,notnull"`
	Name     string `bun:"name,notnull"`

	ModuleName string `bun:"module_name,scanonly"`
}

type taskRow struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID       int64  `bun:"id,pk,autoincrement"`
	ModuleID int64  `bun:"module_id,notnull"`
	UUID     string `bun:"uuid,notnull,unique"`
	Command  string `bun:"command,notnull"`
	Data     string `bun:"data,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:msg"`

	ID       int64  `bun:"id,pk,autoincrement"`
	ModuleID int64  `bun:"module_id,notnull"`
	Command  string `bun:"command,notnull"`
	Message  string `bun:"message,notnull"`

	ModuleName string `bun:"module_name,scanonly"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
