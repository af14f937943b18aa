// Package registry aggregates decoded discovery announcements into a
// deduplicated device table keyed by MAC address, with inactivity expiry.
package registry
