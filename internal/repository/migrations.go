package repository

import "embed"

// Migrations holds the goose SQL migrations for the catalog schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS
