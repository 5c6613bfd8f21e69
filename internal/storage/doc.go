// Package storage is the blob gateway for originals, intermediate artifacts and
// rendered output.
//
// Two backends share one Gateway contract: Local keeps objects under a
// directory and signs URLs with an HMAC, Supabase talks to Supabase Storage via
// storage-go. Both return ErrNotFound for missing objects and report false from
// Exists instead of failing.
package storage
