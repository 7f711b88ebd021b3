//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of authflow
// store interfaces. It is designed for deployment on Google Cloud Platform
// and supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - Account: User accounts
//   - Binding: External login bindings linked to accounts
//   - AuthToken: Confirmation and password reset tokens
//   - Email: email -> account ID mapping for unique lookups
//
// # Namespacing
//
// All stores support Datastore namespaces for multi-tenant applications.
// Pass a namespace when creating stores to isolate data between tenants:
//
//	accountStore := gae.NewAccountStore(client, "tenant-123")
//	tokenStore := gae.NewTokenStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accountStore := gae.NewAccountStore(client, "")  // default namespace
//	tokenStore := gae.NewTokenStore(client, "")
package gae
