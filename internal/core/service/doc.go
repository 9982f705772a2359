// Package service provides the domain services for DotVault.
//
// Domain services contain the business logic of ownership transfer and
// orchestrate operations on domain models. They define interfaces for
// their storage dependencies, allowing for dependency injection and
// testability.
//
// This package contains:
//
//   - TransferService: the transfer session lifecycle (begin, card
//     authentication, key rotation, finalization) plus expiry sweeping
//   - TokenService: token provisioning and registry queries
//   - AuthService: API key authentication, authorization, and rate
//     limiting
//
// Services are stateless apart from caches and are safe for concurrent
// use.
package service
