// Package storage provides the sqlite persistence layer used by the bot.
//
// Records are stored as JSON documents with a small set of materialized
// index columns per table. Queries may only filter or order on declared
// index columns; anything else is rejected with ErrNotIndexed so slow
// full-document scans never creep in silently.
package storage
