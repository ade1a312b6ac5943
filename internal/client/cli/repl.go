package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) error
	Listings(ctx context.Context, query string) error
	Orders(ctx context.Context) error
	Reviews(ctx context.Context, userID string) error
	Stats(ctx context.Context, userID string) error
	Cart(ctx context.Context) error
	CartAdd(ctx context.Context, listingID string) error
	Track(ctx context.Context, event string) error
	Flush(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads commands line by line and dispatches them to a until the
// input ends or the user types "exit" or "quit".
//
//	Not logged in:
//	  - help                 show available commands
//	  - login                authenticate
//	  - status               connectivity, session and queue state
//	  - track <event>        queue a telemetry event
//	  - flush                deliver queued telemetry now
//	  - exit | quit          leave the program
//
//	Logged in, additionally:
//	  - me                   own account
//	  - listings [query]     browse listings
//	  - orders               own orders
//	  - reviews <user>       reviews a user received
//	  - stats [user]         profile stats, own by default
//	  - cart                 cart contents and total
//	  - cartadd <listing>    put one item of a listing in the cart
//	  - logout               sign out and clear cached data
//
// A failing command prints its error; the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("mk %s> ", statusFn()))
		line, err := ReadLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if !a.isLoggedIn() && needsLogin[cmd] {
			printlnFn("Please login first")
			continue
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, listings [query], orders, reviews <user>, stats [user], cart, cartadd <listing>, track <event>, flush, status, logout, exit")
			} else {
				printlnFn("Available commands: login, track <event>, flush, status, exit")
			}

		case "login":
			report(a.Login(ctx))

		case "logout":
			report(a.Logout(ctx))

		case "me":
			report(a.Me(ctx))

		case "l", "listings":
			report(a.Listings(ctx, strings.Join(args, " ")))

		case "orders":
			report(a.Orders(ctx))

		case "reviews":
			if len(args) == 0 {
				printlnFn("Usage: reviews <user>")
				continue
			}
			report(a.Reviews(ctx, args[0]))

		case "stats":
			user := ""
			if len(args) > 0 {
				user = args[0]
			}
			report(a.Stats(ctx, user))

		case "cart":
			report(a.Cart(ctx))

		case "cartadd":
			if len(args) == 0 {
				printlnFn("Usage: cartadd <listing>")
				continue
			}
			report(a.CartAdd(ctx, args[0]))

		case "track":
			if len(args) == 0 {
				printlnFn("Usage: track <event>")
				continue
			}
			report(a.Track(ctx, args[0]))

		case "flush":
			report(a.Flush(ctx))

		case "status":
			report(a.Status(ctx))

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

var needsLogin = map[string]bool{
	"me": true, "l": true, "listings": true, "orders": true, "reviews": true,
	"stats": true, "cart": true, "cartadd": true, "logout": true,
}

func report(err error) {
	if err != nil {
		printlnFn("error:", err)
	}
}
