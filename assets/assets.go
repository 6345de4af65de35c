package assets

import (
	"embed"
	"io/fs"
)

//go:embed emails/*.tmpl
var emailFS embed.FS

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	EmailFS     fs.FS
	MigrationFS fs.FS
)

func init() {
	var err error

	EmailFS, err = fs.Sub(emailFS, "emails")
	if err != nil {
		panic("failed to subtree email FS " + err.Error())
	}

	MigrationFS, err = fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic("failed to subtree migration FS " + err.Error())
	}
}
