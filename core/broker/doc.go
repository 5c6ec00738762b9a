// Package broker builds the NGSI-LD entities published for each forecast and
// pushes them through a Client with create-then-patch upsert semantics.
package broker
