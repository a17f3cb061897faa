package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailed(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"display message", &remoteErr{msg: "Only 2 left in stock."}, KindRemote, "Only 2 left in stock."},
		{"wrapped display message", fmt.Errorf("add: %w", &remoteErr{msg: "Book not found."}), KindRemote, "Book not found."},
		{"blank display message", &remoteErr{msg: "  "}, KindUnknown, GenericMessage},
		{"network", errNetwork, KindUnknown, GenericMessage},
		{"strategy validation", fmt.Errorf("add: %w", errQtyTooLarge), KindValidation, "Quantity is too large."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Failed(tc.err)
			assert.False(t, res.OK)
			assert.Equal(t, tc.kind, res.Kind)
			assert.Equal(t, tc.msg, res.Message)
			assert.ErrorIs(t, res.Err, tc.err)
		})
	}
}
