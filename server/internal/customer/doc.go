// Package customer implements customer record management: field
// validation, the age/birth-date consistency check, duplicate detection,
// soft delete, paging, batch import and the statistics report.
//
// Every rendered record carries its projection, computed against today's
// date from the injected clock and the configured life expectancy.
// Notifications are fire-and-forget; a failed or dropped notification never
// fails the operation that produced it.
package customer
