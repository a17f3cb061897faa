package state

import (
	"time"

	"github.com/rs/zerolog"
)

// Mode is the session mode that selects the persistence strategy.
type Mode int

const (
	Guest Mode = iota
	Authenticated
)

func (m Mode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "guest"
}

// MergePolicy decides what happens to guest contents on the Guest→Authenticated
// transition.
type MergePolicy int

const (
	// MergeNone replaces in-memory state with the remote collection. Guest
	// contents stay in local storage for the next guest session.
	MergeNone MergePolicy = iota
	// MergeGuestIntoRemote pushes every guest entry to the remote store before
	// fetching it, then deletes the guest key if every push succeeded.
	MergeGuestIntoRemote
)

// Local storage keys, one per collection.
const (
	CartKey     = "bookshop.cart"
	WishlistKey = "bookshop.wishlist"
)

type options struct {
	log    zerolog.Logger
	now    func() time.Time
	merge  MergePolicy
	source SnapshotSource
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMergePolicy(p MergePolicy) Option { return func(o *options) { o.merge = p } }

// WithSnapshotSource enables Cart.RefreshSnapshots.
func WithSnapshotSource(s SnapshotSource) Option { return func(o *options) { o.source = s } }

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
