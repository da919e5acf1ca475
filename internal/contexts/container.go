package contexts

import "context"

// contextContainer holds the values this package stores in a context. Each With*
// call stores a copy so parent contexts never observe child values.
type contextContainer struct {
	Actor      *string
	Collection *string
	Operation  *string
}

func getContainer(ctx context.Context) contextContainer {
	if ctx == nil {
		return contextContainer{}
	}

	if container, ok := ctx.Value(containerContextKey).(*contextContainer); ok {
		return *container
	}

	return contextContainer{}
}

func withContainer(ctx context.Context, container contextContainer) context.Context {
	return context.WithValue(ctx, containerContextKey, &container)
}
