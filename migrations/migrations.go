// Package migrations embeds the PostgreSQL schema of the notification service.
package migrations

import "embed"

// FS holds the *.up.sql files applied by db.Migrate.
//
//go:embed *.sql
var FS embed.FS
