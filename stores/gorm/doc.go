//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of authflow store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is suitable for production deployments requiring
// relational database storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: User accounts
//   - bindings: External login bindings linked to accounts
//   - auth_tokens: Confirmation and password reset tokens
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	accountStore := gormstore.NewAccountStore(db)
//	tokenStore := gormstore.NewTokenStore(db)
package gorm
