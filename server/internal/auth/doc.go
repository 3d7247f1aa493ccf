// Package auth provides API-key authentication for the server's write
// endpoints.
//
// APIKey(mode, header, key) returns chi-compatible middleware. When mode is
// not "apikey" or key is empty every request passes through, which is the
// local development setup. Otherwise a missing or wrong key is rejected with
// 401 and a JSON error body.
package auth
