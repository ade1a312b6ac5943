// Package client is the typed REST client of the marketplace backend.
//
// # Overview
//
// The package provides:
//  1. The API contract (see the API interface) used by the domain services.
//  2. RESTClient, which performs every call through a pipeline.Pipeline, so
//     auth injection, 401 recovery, retries and the response cache apply.
//  3. Refresher, which exchanges a refresh token for a new pair over a
//     pipeline without session handling, as session.Manager requires.
//
// # Error Handling
//
// Errors carry the taxonomy of package common and are matched with
// errors.Is: common.ErrNetwork, common.ErrAuth, common.ErrValidation,
// common.ErrNotFound, common.ErrServer.
//
// Responses embed the related entities of each record (buyer, seller,
// listing, order, rater, ratee), see models.OrderPayload and friends.
package client
