// Package deeplink turns raw deep link URLs into classified auth callback
// payloads, and arbitrates the multiple racing sources that can observe the
// same physical link-open event into a single pending deep link.
package deeplink
