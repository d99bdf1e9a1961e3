package identity

import "context"

// Resolver maps an Identifier to an active, non-deleted identity.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the visible identity for id.
// A zero Identifier fails with ErrMissingIdentifier before the store is touched.
func (r *Resolver) Resolve(ctx context.Context, id Identifier) (Identity, error) {
	const op = "identity.Resolve"

	if id.IsZero() {
		return Identity{}, OpError{Op: op, Kind: ErrMissingIdentifier}
	}
	if r == nil || r.store == nil {
		return Identity{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}

	out, err := r.store.FindBy(ctx, id.field(), id.Value())
	if err != nil {
		return Identity{}, err
	}
	// Stores already filter; this guards third-party implementations.
	if !out.Visible() {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return out, nil
}
