// Package db embeds the storefront schema so the server can apply it at
// startup without external migration tooling.
package db

import _ "embed"

// Schema holds the DDL for the catalog, coupon, order, wallet, counter, and
// api key tables.
//
//go:embed migrations/001_schema.sql
var Schema string
