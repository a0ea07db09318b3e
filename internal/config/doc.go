// Package config loads, validates, and hot-reloads the gateway's single
// configuration document (servers, front-end listen settings, auth,
// policies, Streamable-HTTP session limits).
//
// Load parses the document once at startup; Manager wraps it with file-watch
// (fsnotify) driven reloads, validating every candidate before
// replacing the active configuration and publishing a Diff describing what
// changed so the Transport Pool, Registry, and front-end can apply it without
// a restart.
package config
