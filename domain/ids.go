// Package domain contains core concepts of the chat system.
// This file defines the stable identifiers the indices are keyed by.
// No runtime, network, or UI logic should be added here.
package domain

// UserID identifies an account across the whole product.
type UserID string

// ChatID identifies a conversation.
type ChatID string

// ConnectionID identifies a single live transport stream. It is unique
// per process lifetime and never reused.
type ConnectionID string
