// Package ratelimit keeps one token bucket per client IP with
// background eviction of idle entries and a hard cap on tracked
// visitors.
//
// It is in-memory and per-instance: enough to blunt a single scraper
// hammering the documentation endpoints, not a defense against
// distributed abuse. Anything bigger belongs in the CDN or WAF in
// front of this server.
package ratelimit
