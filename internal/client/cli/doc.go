// Package cli implements keeperctl, the operator command-line client for a
// running chatkeeper server.
//
// Each invocation runs one command against the server's gRPC endpoint:
//
//	stats                    conversation and message counts, active backend
//	list                     conversations, most recently updated first
//	show <id>                one conversation with its messages
//	delete <id>              delete a conversation and its messages
//	delete-message <id>      delete one message
//	backup [--scheduled]     trigger a backup (manual unless --scheduled)
//	status                   backup scheduler state and history
//
// Tabular output is rendered with tablewriter.
package cli
