// Package observers contains resocket.Observer implementations: a logging
// observer, an asynchronous queueing wrapper for observers that may block,
// a channel observer that exposes messages as a channel, and Funcs for
// ad-hoc callbacks.
package observers
