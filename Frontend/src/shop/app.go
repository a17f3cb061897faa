// Línea de comandos del bookshop: carrito, lista de deseos y reseñas, en modo
// invitado o autenticado.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ahinestrog/bookshop/Frontend/src/api"
	"github.com/ahinestrog/bookshop/Frontend/src/state"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Dependencies holds what Run needs from the outside world.
type Dependencies struct {
	Out        io.Writer
	Err        io.Writer
	Local      state.LocalStore
	HTTPClient *http.Client
	Now        func() time.Time
}

type CLI struct {
	API     string        `name:"api" env:"BOOKSHOP_API" default:"http://localhost:8080" help:"Storefront API base URL"`
	Timeout time.Duration `env:"BOOKSHOP_TIMEOUT" default:"10s" help:"Per-command timeout"`
	Verbose bool          `short:"v" help:"Log requests and state changes to stderr"`

	Cart     CartCmd     `cmd:"" help:"Show and edit the cart"`
	Wishlist WishlistCmd `cmd:"" help:"Show and edit the wishlist"`
	Reviews  ReviewsCmd  `cmd:"" help:"Read and write book reviews"`
	Books    BooksCmd    `cmd:"" help:"Browse the catalog"`
	Login    LoginCmd    `cmd:"" help:"Sign in"`
	Register RegisterCmd `cmd:"" help:"Create an account and sign in"`
	Logout   LogoutCmd   `cmd:"" help:"Sign out and return to guest mode"`
	Whoami   struct{}    `cmd:"" help:"Show the current mode and user"`
}

type (
	CartCmd struct {
		Show struct {
			Refresh bool `help:"Refresh book details from the catalog (guest mode)"`
		} `cmd:"" default:"1" help:"List cart lines"`
		Add struct {
			BookID int64 `arg:"" name:"book-id"`
			Qty    int32 `arg:"" optional:"" default:"1"`
		} `cmd:"" help:"Add copies of a book"`
		Set struct {
			BookID int64 `arg:"" name:"book-id"`
			Qty    int32 `arg:""`
		} `cmd:"" help:"Set the quantity of a line (0 removes it)"`
		Remove struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Remove a line"`
		Clear struct{} `cmd:"" help:"Empty the cart"`
		Check struct{} `cmd:"" help:"Report lines that exceed known stock"`
	}

	WishlistCmd struct {
		Show struct{} `cmd:"" default:"1" help:"List wishlist entries"`
		Add  struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Save a book"`
		Remove struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Forget a book"`
		Move struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Move a book to the cart"`
		Clear struct{} `cmd:"" help:"Empty the wishlist"`
	}

	ReviewsCmd struct {
		List struct {
			BookID int64  `arg:"" name:"book-id"`
			Sort   string `enum:"newest,oldest,highest,lowest,helpful" default:"newest" help:"Sort order"`
		} `cmd:"" help:"List reviews of a book"`
		Stats struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Rating summary of a book"`
		Write struct {
			BookID int64  `arg:"" name:"book-id"`
			Rating int    `short:"r" required:"" help:"Stars, 1 to 5"`
			Title  string `short:"t"`
			Body   string `short:"b"`
		} `cmd:"" help:"Review a book"`
		Edit struct {
			ReviewID string `arg:"" name:"review-id"`
			BookID   int64  `name:"book" required:"" help:"Book the review belongs to"`
			Rating   int    `short:"r" required:""`
			Title    string `short:"t"`
			Body     string `short:"b"`
		} `cmd:"" help:"Edit your review"`
		Delete struct {
			ReviewID string `arg:"" name:"review-id"`
			BookID   int64  `name:"book" required:""`
		} `cmd:"" help:"Delete your review"`
		Helpful struct {
			ReviewID string `arg:"" name:"review-id"`
			BookID   int64  `name:"book" required:""`
		} `cmd:"" help:"Mark a review as helpful"`
	}

	BooksCmd struct {
		List struct {
			Query string `arg:"" optional:"" help:"Filter by title or author"`
		} `cmd:"" default:"withargs" help:"List books"`
		Show struct {
			BookID int64 `arg:"" name:"book-id"`
		} `cmd:"" help:"Show one book"`
	}

	LoginCmd struct {
		Email    string `short:"e" required:"" env:"BOOKSHOP_EMAIL"`
		Password string `short:"p" required:"" env:"BOOKSHOP_PASSWORD"`
		Merge    bool   `help:"Push guest cart and wishlist into the account instead of discarding them"`
	}

	RegisterCmd struct {
		Name     string `short:"n" required:""`
		Email    string `short:"e" required:""`
		Password string `short:"p" required:"" env:"BOOKSHOP_PASSWORD"`
		Merge    bool   `help:"Push guest cart and wishlist into the new account"`
	}

	LogoutCmd struct{}
)

// Run parses args and executes one command. Returns the process exit code.
func Run(args []string, deps Dependencies) int {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Err == nil {
		deps.Err = os.Stderr
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	// .env del directorio actual, antes de resolver los tags env
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(deps.Err, "Warning: failed to load .env: %v\n", err)
		}
	}

	cli := CLI{}
	exited := false
	parser, err := kong.New(&cli,
		kong.Name("shop"),
		kong.Description("Bookshop cart, wishlist and reviews."),
		kong.Writers(deps.Out, deps.Err),
		kong.Exit(func(int) { exited = true }),
		kong.UsageOnError(),
	)
	if err != nil {
		return exitWithError(deps.Err, err)
	}
	kctx, err := parser.Parse(args)
	if exited {
		return 0
	}
	if err != nil {
		return exitWithError(deps.Err, err)
	}

	handler, ok := commands[commandPath(kctx.Command())]
	if !ok {
		fmt.Fprintln(deps.Err, "unknown command")
		return 1
	}

	rt, err := newRuntime(cli, deps)
	if err != nil {
		return exitWithError(deps.Err, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()
	return handler(ctx, rt, cli)
}

// commandPath drops kong's positional placeholders: "cart add <book-id>" is "cart add".
func commandPath(cmd string) string {
	var parts []string
	for _, f := range strings.Fields(cmd) {
		if strings.HasPrefix(f, "<") {
			continue
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " ")
}

func exitWithError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

type runtime struct {
	out     io.Writer
	log     zerolog.Logger
	now     func() time.Time
	client  *api.Client
	local   state.LocalStore
	session *state.Session
}

func newRuntime(cli CLI, deps Dependencies) (*runtime, error) {
	log := zerolog.Nop()
	if cli.Verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: deps.Err}).With().Timestamp().Logger()
	}

	clientOpts := []api.Option{api.WithLogger(log)}
	if deps.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(deps.HTTPClient))
	}
	client, err := api.New(cli.API, clientOpts...)
	if err != nil {
		return nil, err
	}

	local := deps.Local
	if local == nil {
		local = state.NewMemoryStore()
	}

	merge := state.MergeNone
	if cli.Login.Merge || cli.Register.Merge {
		merge = state.MergeGuestIntoRemote
	}
	opts := []state.Option{
		state.WithLogger(log),
		state.WithClock(deps.Now),
		state.WithMergePolicy(merge),
		state.WithSnapshotSource(client),
	}
	cart := state.NewCart(local, client.Cart(), opts...)
	wishlist := state.NewWishlist(local, client.Wishlist(), opts...)
	reviews := state.NewReviews(client.Reviews(), opts...)

	return &runtime{
		out:     deps.Out,
		log:     log,
		now:     deps.Now,
		client:  client,
		local:   local,
		session: state.NewSession(local, client, cart, wishlist, reviews, opts...),
	}, nil
}

// report prints a failed result and maps it to an exit code.
func (rt *runtime) report(res state.Result) int {
	if res.OK {
		return 0
	}
	fmt.Fprintln(rt.out, res.Message)
	return 1
}

// restore loads the persisted session; a failing load is printed but the
// command still runs against the (empty) collections.
func (rt *runtime) restore(ctx context.Context) {
	if res := rt.session.Restore(ctx); !res.OK {
		fmt.Fprintf(rt.out, "Warning: %s\n", res.Message)
	}
}
