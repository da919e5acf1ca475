// Package contexts carries request-scoped values (acting identity, collection and
// operation names) through context.Context.
package contexts

import "context"

// ContextKey defines the context key type.
type ContextKey string

const containerContextKey ContextKey = "context_container"

// WithActor stores the acting identity, typically a user id resolved by the caller's
// session layer.
func WithActor(ctx context.Context, actor string) context.Context {
	container := getContainer(ctx)
	container.Actor = &actor

	return withContainer(ctx, container)
}

// GetActor retrieves the acting identity from the context.
func GetActor(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.Actor != nil {
		return *container.Actor, true
	}

	return "", false
}

// WithCollection stores the name of the collection an operation targets.
func WithCollection(ctx context.Context, name string) context.Context {
	container := getContainer(ctx)
	container.Collection = &name

	return withContainer(ctx, container)
}

func GetCollection(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.Collection != nil {
		return *container.Collection, true
	}

	return "", false
}

// WithOperation stores the operation name (insert, update, find ...).
func WithOperation(ctx context.Context, op string) context.Context {
	container := getContainer(ctx)
	container.Operation = &op

	return withContainer(ctx, container)
}

func GetOperation(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.Operation != nil {
		return *container.Operation, true
	}

	return "", false
}
