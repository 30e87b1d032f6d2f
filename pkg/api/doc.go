// Package api provides the HTTP REST API server for the Usher enterprise
// onboarding control plane.
//
// # Overview
//
// This package implements the HTTP layer that exposes Usher's functionality
// as RESTful endpoints. It handles enterprise invitations, the onboarding
// saga, lifecycle transitions, branding assets, tenant-scoped reads,
// webhook subscription management and the audit trail query.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific
// handler groups, each registering its own routes under /api/v1:
//
//   - Enterprise Management: invite, reinvite, onboard, resume, registry
//     reads, status transitions, activation and soft delete
//   - Events: the storage-ready callback from the provisioning pipeline
//   - Branding: logo upload and serving backed by an asset store
//   - Tenants: the tenant-scoped workspace read and operator schema
//     reclamation
//   - Webhooks: subscription CRUD and the delivery log
//   - Audit: filtered queries over the control-plane audit trail
//
// # Key Types
//
// Server is the main API server that coordinates all handler groups:
//
//	server := api.NewServer(api.Deps{
//		Config:      cfg.Server,
//		Logger:      logger,
//		Onboarding:  saga,
//		Enterprises: enterpriseStore,
//	})
//	http.ListenAndServe(":8080", server)
//
// Handler groups follow one shape: a NewXHandlers constructor taking the
// domain dependency plus any route middleware, and a RegisterRoutes method
// the server calls with the versioned subrouter.
//
// # Authentication
//
// Operator endpoints verify an OIDC bearer token. The onboard endpoint is
// the exception: the enterprise admin does not exist in the IdP yet, so it
// authenticates with the signed invitation token from the emailed link.
// Both arrive as middleware through Deps, so handler code never inspects
// credentials itself.
//
// # Error Responses
//
// Every error body is {"error": message}. Saga and store errors map onto
// status codes in one place: malformed input is 400, taken domains and
// emails are 409, lifecycle guard failures are 409, missing resources are
// 404, and IdP or broker failures surface as 502.
package api
