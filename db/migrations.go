// Package db embeds the remote mirror schema migrations.
package db

import "embed"

// Migrations holds the golang-migrate SQL files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
