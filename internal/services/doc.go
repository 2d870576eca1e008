// Package services talks HTTP to the BPM runner backend and to signed storage URLs.
//
// # Transport
//
// [APIService] is the single request helper. [APIService.Do] encodes JSON, attaches
// "Authorization: Bearer <token>" read from an [oauth2.TokenSource] on every call, and turns any
// non-2xx response into a [shared.RequestError] whose message is the JSON "message" field, the raw
// body text, or the status text, in that order.
//
// # Credentials
//
// [Credentials] is the token source: a file-backed store with explicit Load, Set and Clear. Token
// expiry is read from the JWT exp claim so expired sessions fail before reaching the network.
//
// # Backend
//
// [BackendService] maps each endpoint to a typed method (tracks, uploads, analysis, renders).
// Track and render ids are validated as UUIDs before a request is built.
//
// # Storage
//
// [ObjectWriter] performs the direct PUT to a pre-signed URL and reports failures as
// [shared.TransferError]. It never sends the API token.
package services
