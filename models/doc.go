// Package models selects and builds the chat model used for a turn.
//
// Resolve applies the selection order: the conversation's own model field,
// then the provider bound to the request (see WithProvider and ForAgent),
// then the MODEL environment default, then OpenAI. There is no process-wide
// current provider; the binding travels with the request context.
package models
