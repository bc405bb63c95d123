// Package conversations provides the two interchangeable conversation stores.
//
// # Backends
//
// EmbeddedRepository keeps every conversation and message in memory and
// mirrors the whole dataset to a pair of JSON files (main and backup) after
// each mutation. Before the main file is rewritten the current one is copied
// over the backup, so an interrupted write always leaves a parseable
// last-known-good copy. Reads never touch the disk.
//
// PostgresRepository stores the same records in two tables (messages
// reference conversations with ON DELETE CASCADE) and leaves durability and
// locking to the database. Driver failures surface as
// common.ErrBackendUnavailable.
//
// # Typical Usage
//
//	repo := conversations.NewEmbeddedRepository(conversations.EmbeddedOptions{Dir: "data"}, logger)
//	go repo.Run(ctx) // periodic safety-net flush
//	_ = repo.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Title: "Hi"})
//	list, _ := repo.ListConversations(ctx)
//
// Backend selection with fallback lives in the repomanager package.
package conversations
