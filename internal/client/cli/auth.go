package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for credentials and signs in. The password is wiped before
// returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	acc, err := a.core.Login(ctx, email, string(password))
	if err != nil {
		if client.IsUnavailable(err) {
			return fmt.Errorf("server unavailable, try again when online: %w", err)
		}
		return fmt.Errorf("login unsuccessful: %w", err)
	}

	a.setUser(acc.DisplayName)
	fmt.Fprintf(a.out, "Signed in as %s\n", acc.DisplayName)
	return nil
}

// Logout ends the session and clears the data cached for it.
func (a *App) Logout(ctx context.Context) error {
	err := a.core.Logout(ctx)
	a.setUser("")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

// Me shows the signed-in account.
func (a *App) Me(ctx context.Context) error {
	res, err := a.core.Auth.Me(ctx)
	if err != nil {
		return err
	}
	acc := res.Data
	fmt.Fprintf(a.out, "%s <%s> id=%s%s\n", acc.DisplayName, acc.Email, acc.ID, originTag(res.Origin))
	return nil
}
