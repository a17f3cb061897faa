package state

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ahinestrog/bookshop/common"
)

// SessionKey holds the serialized login in the LocalStore.
const SessionKey = "bookshop.session"

// Authenticator is the identity collaborator. SetToken is called with the
// issued token on login and with "" on logout.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (common.LoginResponse, error)
	SetToken(token string)
}

// Session is the composition root for the storefront state: it owns one Cart,
// Wishlist and Reviews and moves them between modes together.
type Session struct {
	Cart     *Cart
	Wishlist *Wishlist
	Reviews  *Reviews

	auth  Authenticator
	local LocalStore
	opts  options

	mu   sync.RWMutex
	user *common.LoginResponse
}

func NewSession(local LocalStore, auth Authenticator, cart *Cart, wishlist *Wishlist, reviews *Reviews, opts ...Option) *Session {
	if local == nil {
		local = NewMemoryStore()
	}
	return &Session{
		Cart:     cart,
		Wishlist: wishlist,
		Reviews:  reviews,
		auth:     auth,
		local:    local,
		opts:     buildOptions(opts),
	}
}

// Restore picks the mode from a persisted login, if any, and initializes the
// collections in it.
func (s *Session) Restore(ctx context.Context) Result {
	mode := Guest
	b, ok, err := s.local.Get(ctx, SessionKey)
	if err != nil {
		s.opts.log.Warn().Err(err).Msg("session not readable, continuing as guest")
	}
	if ok {
		var u common.LoginResponse
		if err := json.Unmarshal(b, &u); err == nil && u.Token != "" {
			s.setUser(&u)
			mode = Authenticated
		} else {
			s.opts.log.Warn().Msg("discarding malformed session")
		}
	}
	return s.apply(ctx, mode, false)
}

// Login authenticates and switches every collection to Authenticated.
func (s *Session) Login(ctx context.Context, email, password string) Result {
	if s.auth == nil {
		return Failed(errNoRemote)
	}
	u, err := s.auth.Login(ctx, email, password)
	if err != nil {
		res := Failed(err)
		s.opts.log.Warn().Err(err).Str("kind", res.Kind.String()).Msg("login failed")
		return res
	}
	s.setUser(&u)
	if b, err := json.Marshal(u); err == nil {
		if err := s.local.Set(ctx, SessionKey, b); err != nil {
			s.opts.log.Warn().Err(err).Msg("session not persisted")
		}
	}
	s.opts.log.Info().Int64("user", u.UserID).Msg("signed in")
	return s.apply(ctx, Authenticated, true)
}

// Logout forgets the login and reloads guest contents.
func (s *Session) Logout(ctx context.Context) Result {
	s.setUser(nil)
	if err := s.local.Delete(ctx, SessionKey); err != nil {
		s.opts.log.Warn().Err(err).Msg("session not deleted")
	}
	return s.apply(ctx, Guest, true)
}

// apply moves the cart and wishlist to mode, through SwitchMode when
// transition is true, and returns the first failure.
func (s *Session) apply(ctx context.Context, mode Mode, transition bool) Result {
	out := succeeded()
	keep := func(res Result) {
		if !res.OK && out.OK {
			out = res
		}
	}
	if s.Cart != nil {
		if transition {
			keep(s.Cart.SwitchMode(ctx, mode))
		} else {
			keep(s.Cart.Initialize(ctx, mode))
		}
	}
	if s.Wishlist != nil {
		if transition {
			keep(s.Wishlist.SwitchMode(ctx, mode))
		} else {
			keep(s.Wishlist.Initialize(ctx, mode))
		}
	}
	return out
}

func (s *Session) setUser(u *common.LoginResponse) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	if s.auth == nil {
		return
	}
	if u == nil {
		s.auth.SetToken("")
	} else {
		s.auth.SetToken(u.Token)
	}
}

// User returns the signed-in identity, if any.
func (s *Session) User() (common.LoginResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return common.LoginResponse{}, false
	}
	return *s.user, true
}

func (s *Session) Mode() Mode {
	if _, ok := s.User(); ok {
		return Authenticated
	}
	return Guest
}
