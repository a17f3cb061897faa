package state

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ahinestrog/bookshop/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guestCart(t *testing.T, local LocalStore) *Cart {
	t.Helper()
	c := NewCart(local, nil)
	require.True(t, c.Initialize(context.Background(), Guest).OK)
	return c
}

func TestCart_GuestAddIncrements(t *testing.T) {
	ctx := context.Background()
	c := guestCart(t, NewMemoryStore())

	require.True(t, c.Add(ctx, 7, 2).OK)
	require.True(t, c.Add(ctx, 7, 3).OK)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int32(5), lines[0].Qty)
	assert.Equal(t, common.Book{ID: 7}, lines[0].Book)
}

func TestCart_GuestAddAtQuantityLimit(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	c := guestCart(t, local)

	require.True(t, c.Add(ctx, 7, math.MaxInt32-1).OK)
	require.True(t, c.Add(ctx, 7, 1).OK)

	res := c.Add(ctx, 7, 1)
	assert.False(t, res.OK)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Equal(t, "Quantity is too large.", res.Message)

	res = c.Add(ctx, 7, math.MaxInt32)
	assert.Equal(t, KindValidation, res.Kind)

	assert.Equal(t, math.MaxInt32, c.ItemCount())
	reloaded := guestCart(t, local)
	assert.Equal(t, []common.CartLine{{BookID: 7, Qty: math.MaxInt32, Book: common.Book{ID: 7}}}, reloaded.Lines())
}

func TestCart_GuestSetQuantityMissingLine(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	c := guestCart(t, local)
	require.True(t, c.Add(ctx, 1, 1).OK)

	res := c.SetQuantity(ctx, 2, 3)
	assert.False(t, res.OK)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Equal(t, "This book is not in your cart.", res.Message)
	assert.Equal(t, []common.CartLine{{BookID: 1, Qty: 1, Book: common.Book{ID: 1}}}, c.Lines())
	assert.Equal(t, c.Lines(), guestCart(t, local).Lines())
}

func TestCart_GuestRoundTrip(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	c := guestCart(t, local)

	steps := []func() Result{
		func() Result { return c.Add(ctx, 1, 2) },
		func() Result { return c.Add(ctx, 2, 1) },
		func() Result { return c.Add(ctx, 3, 4) },
		func() Result { return c.SetQuantity(ctx, 1, 6) },
		func() Result { return c.Remove(ctx, 2) },
		func() Result { return c.Add(ctx, 1, 1) },
		func() Result { return c.SetQuantity(ctx, 3, 0) },
		func() Result { return c.Add(ctx, 9, 1) },
	}
	for i, step := range steps {
		require.True(t, step().OK, "step %d", i)

		reloaded := guestCart(t, local)
		assert.Equal(t, c.Lines(), reloaded.Lines(), "after step %d", i)
	}

	assert.Equal(t, []common.CartLine{
		{BookID: 1, Qty: 7, Book: common.Book{ID: 1}},
		{BookID: 9, Qty: 1, Book: common.Book{ID: 9}},
	}, c.Lines())
}

func TestCart_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "guest.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)

	c := guestCart(t, store)
	require.True(t, c.Add(ctx, 4, 2).OK)
	require.True(t, c.Add(ctx, 5, 1).OK)
	want := c.Lines()
	require.NoError(t, store.Close())

	store, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, want, guestCart(t, store).Lines())
}

func TestCart_ItemCountSumsQuantities(t *testing.T) {
	ctx := context.Background()
	c := guestCart(t, NewMemoryStore())
	require.True(t, c.Add(ctx, 1, 3).OK)
	require.True(t, c.Add(ctx, 2, 1).OK)

	assert.Equal(t, 4, c.ItemCount())
	assert.Len(t, c.Lines(), 2)
}

func TestCart_SetQuantityBelowOneRemoves(t *testing.T) {
	for _, qty := range []int32{0, -1} {
		ctx := context.Background()
		viaSet := guestCart(t, NewMemoryStore())
		viaRemove := guestCart(t, NewMemoryStore())
		for _, c := range []*Cart{viaSet, viaRemove} {
			require.True(t, c.Add(ctx, 1, 2).OK)
			require.True(t, c.Add(ctx, 2, 1).OK)
		}

		res := viaSet.SetQuantity(ctx, 1, qty)
		require.True(t, res.OK)
		require.True(t, viaRemove.Remove(ctx, 1).OK)

		assert.Equal(t, viaRemove.Lines(), viaSet.Lines(), "qty=%d", qty)
		_, ok := viaSet.Line(1)
		assert.False(t, ok)
	}
}

func TestCart_AddRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	c := guestCart(t, NewMemoryStore())

	res := c.Add(ctx, 1, 0)
	assert.False(t, res.OK)
	assert.Equal(t, KindValidation, res.Kind)

	res = c.Add(ctx, 0, 1)
	assert.False(t, res.OK)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Empty(t, c.Lines())
}

func TestCart_MalformedStorageIsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"garbage": "{not json",
		"object":  `{"book_id": 1}`,
		"empty":   "",
	} {
		t.Run(name, func(t *testing.T) {
			local := NewMemoryStore()
			require.NoError(t, local.Set(ctx, CartKey, []byte(raw)))
			c := NewCart(local, nil)
			res := c.Initialize(ctx, Guest)
			assert.True(t, res.OK)
			assert.Empty(t, c.Lines())
		})
	}

	t.Run("missing", func(t *testing.T) {
		c := NewCart(NewMemoryStore(), nil)
		assert.True(t, c.Initialize(ctx, Guest).OK)
		assert.Empty(t, c.Lines())
	})

	t.Run("invalid lines dropped", func(t *testing.T) {
		local := NewMemoryStore()
		require.NoError(t, local.Set(ctx, CartKey, []byte(`[{"book_id":1,"qty":0},{"book_id":2,"qty":2}]`)))
		c := guestCart(t, local)
		assert.Equal(t, []common.CartLine{{BookID: 2, Qty: 2, Book: common.Book{ID: 2}}}, c.Lines())
	})
}

func TestCart_PersistFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	c := guestCart(t, failingStore{NewMemoryStore()})

	res := c.Add(ctx, 1, 1)
	assert.False(t, res.OK)
	assert.Equal(t, KindUnknown, res.Kind)
	assert.Equal(t, GenericMessage, res.Message)
	assert.Empty(t, c.Lines())
}

func TestCart_GuestClearDeletesKey(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	c := guestCart(t, local)
	require.True(t, c.Add(ctx, 1, 1).OK)

	require.True(t, c.Clear(ctx).OK)
	_, ok, err := local.Get(ctx, CartKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.ItemCount())
}

func TestCart_TotalUsesSnapshots(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)

	require.True(t, c.Add(ctx, 1, 3).OK)
	require.True(t, c.Add(ctx, 2, 2).OK)
	assert.Equal(t, common.Money{Cents: 3*1500 + 2*900}, c.Total())
}

func TestCart_AuthenticatedAddRefetches(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)

	require.True(t, c.Add(ctx, 1, 2).OK)
	assert.Equal(t, []string{"get", "add 1 2", "get"}, remote.Calls())

	line, ok := c.Line(1)
	require.True(t, ok)
	assert.Equal(t, "Dune", line.Book.Title)
	assert.Equal(t, int32(10), line.Book.Stock)
}

func TestCart_RemoteFailureMessages(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)

	res := c.Add(ctx, 2, 5)
	assert.False(t, res.OK)
	assert.Equal(t, KindRemote, res.Kind)
	assert.Equal(t, "Only 2 left in stock.", res.Message)

	remote.failAdd = errNetwork
	res = c.Add(ctx, 1, 1)
	assert.False(t, res.OK)
	assert.Equal(t, KindUnknown, res.Kind)
	assert.Equal(t, GenericMessage, res.Message)
	assert.ErrorIs(t, res.Err, errNetwork)
	assert.Empty(t, c.Lines())
}

func TestCart_AuthenticatedSetQuantityAndRemove(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)
	require.True(t, c.Add(ctx, 1, 1).OK)

	require.True(t, c.SetQuantity(ctx, 1, 4).OK)
	assert.Equal(t, 4, c.ItemCount())

	require.True(t, c.SetQuantity(ctx, 1, 0).OK)
	assert.Empty(t, c.Lines())
	assert.Contains(t, remote.Calls(), "remove 1")
}

func TestCart_AuthenticatedClearAlwaysCallsRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)
	require.True(t, c.Add(ctx, 1, 1).OK)

	remote.failClear = &remoteErr{msg: "Session expired."}
	res := c.Clear(ctx)
	assert.False(t, res.OK)
	assert.Equal(t, "Session expired.", res.Message)
	assert.Empty(t, c.Lines())
	assert.Contains(t, remote.Calls(), "clear")
}

func TestCart_LoginReplacesGuestLines(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	remote := newFakeRemote()
	remote.cart = []common.CartLine{{BookID: 1, Qty: 1, Book: remote.books[1]}}

	c := NewCart(local, remote)
	require.True(t, c.Initialize(ctx, Guest).OK)
	require.True(t, c.Add(ctx, 2, 1).OK)
	require.True(t, c.Add(ctx, 1, 3).OK)

	require.True(t, c.SwitchMode(ctx, Authenticated).OK)
	assert.Equal(t, Authenticated, c.Mode())
	assert.Equal(t, []common.CartLine{{BookID: 1, Qty: 1, Book: remote.books[1]}}, c.Lines())
	assert.NotContains(t, remote.Calls(), "add 2 1")

	// guest contents survive for the next guest session
	require.True(t, c.SwitchMode(ctx, Guest).OK)
	assert.Equal(t, 4, c.ItemCount())
}

func TestCart_LoginMergePolicy(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	remote := newFakeRemote()

	c := NewCart(local, remote, WithMergePolicy(MergeGuestIntoRemote))
	require.True(t, c.Initialize(ctx, Guest).OK)
	require.True(t, c.Add(ctx, 1, 2).OK)

	require.True(t, c.SwitchMode(ctx, Authenticated).OK)
	assert.Equal(t, 2, c.ItemCount())
	line, _ := c.Line(1)
	assert.Equal(t, "Dune", line.Book.Title)

	_, ok, err := local.Get(ctx, CartKey)
	require.NoError(t, err)
	assert.False(t, ok, "merged guest cart should be cleared")
}

func TestCart_LoginMergePartialFailureKeepsGuestKey(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	remote := newFakeRemote()

	c := NewCart(local, remote, WithMergePolicy(MergeGuestIntoRemote))
	require.True(t, c.Initialize(ctx, Guest).OK)
	require.True(t, c.Add(ctx, 1, 1).OK)
	require.True(t, c.Add(ctx, 3, 1).OK) // out of stock remotely

	res := c.SwitchMode(ctx, Authenticated)
	assert.False(t, res.OK)
	assert.Equal(t, KindRemote, res.Kind)
	assert.Equal(t, Authenticated, c.Mode())
	assert.Equal(t, 1, c.ItemCount())

	_, ok, err := local.Get(ctx, CartKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCart_AuthenticatedLoadFailureEmptiesState(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.failGet = errNetwork
	c := guestCart(t, NewMemoryStore())
	require.True(t, c.Add(ctx, 1, 1).OK)
	c.remote = remote

	res := c.SwitchMode(ctx, Authenticated)
	assert.False(t, res.OK)
	assert.Empty(t, c.Lines())
}

func TestCart_AuthenticatedWithoutRemote(t *testing.T) {
	c := NewCart(NewMemoryStore(), nil)
	res := c.Initialize(context.Background(), Authenticated)
	assert.False(t, res.OK)
	assert.Equal(t, KindUnknown, res.Kind)
}

func TestCart_CheckoutBlockers(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.cart = []common.CartLine{
		{BookID: 1, Qty: 2, Book: remote.books[1]},
		{BookID: 2, Qty: 3, Book: remote.books[2]},
	}
	c := NewCart(NewMemoryStore(), remote)
	require.True(t, c.Initialize(ctx, Authenticated).OK)

	assert.Equal(t, []Blocker{{BookID: 2, Title: "Emma", Requested: 3, Available: 2, Reason: StockShort}}, c.CheckoutBlockers())

	g := guestCart(t, NewMemoryStore())
	require.True(t, g.Add(ctx, 5, 1).OK)
	assert.Equal(t, []Blocker{{BookID: 5, Requested: 1, Reason: StockUnknown}}, g.CheckoutBlockers())
}

func TestCart_RefreshSnapshots(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	src := bookSource{1: {Title: "Dune", PriceCents: 1500, Stock: 10}}
	c := NewCart(local, nil, WithSnapshotSource(src))
	require.True(t, c.Initialize(ctx, Guest).OK)
	require.True(t, c.Add(ctx, 1, 2).OK)
	require.True(t, c.Add(ctx, 8, 1).OK)

	res := c.RefreshSnapshots(ctx)
	assert.False(t, res.OK, "book 8 is unknown to the catalog")

	line, ok := c.Line(1)
	require.True(t, ok)
	assert.Equal(t, common.Book{ID: 1, Title: "Dune", PriceCents: 1500, Stock: 10}, line.Book)
	assert.Equal(t, common.Money{Cents: 3000}, c.Total())

	reloaded := guestCart(t, local)
	assert.Equal(t, c.Lines(), reloaded.Lines())
}

func TestCart_ConcurrentMutationsSerialize(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	c := guestCart(t, local)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(ctx, 1, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.ItemCount())
	assert.False(t, c.Busy())
	assert.Equal(t, 50, guestCart(t, local).ItemCount())
}
