// Package model defines the core domain types for the game hall.
package model
