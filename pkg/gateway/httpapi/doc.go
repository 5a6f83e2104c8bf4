// Package httpapi implements the client-facing HTTP surface (§6): the
// Anthropic-shaped /v1/messages endpoint, the OpenAI-shaped
// /v1/chat/completions endpoint, and /v1/models.
//
// Grounded on the teacher's pkg/proxy/handlers/chat.go for the handler
// wrapper shape (struct holding the collaborator it needs, NewXHandler
// constructor, ServeHTTP delegating to a plain function) and structured
// request-scoped logging; the request/response bodies themselves are not
// decoded here (the Dispatcher's Translator owns that), since this package
// only needs to sniff the requested model name before handing the raw body
// to pkg/gateway/dispatch.
package httpapi
