// Package services contains the domain repositories of the marketplace
// client. Each one combines the REST client, the local store and one of the
// offline read strategies. This file defines the authentication service:
// login, the cached own profile, logout and local data cleanup.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/session"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// metaAccountID remembers who is signed in across restarts.
const metaAccountID = "account.id"

// AuthService defines authentication operations.
//
// Contract:
//   - Login: authenticate, persist the session and cache the own account.
//   - Me: the own account, cache-first.
//   - Logout: drop the session and every cached domain record.
//   - ClearLocalData: the local half of Logout, also used after the
//     session was cleared by a rejected refresh.
//   - CurrentUserID: id of the signed-in account.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.Account, error)
	Me(ctx context.Context) (offline.Result[*models.Account], error)
	Logout(ctx context.Context) error
	ClearLocalData(ctx context.Context) error
	CurrentUserID(ctx context.Context) (string, error)
	Authenticated() bool
}

type authService struct {
	api    client.API
	store  *store.Store
	sess   *session.Manager
	reader *offline.CacheFirstReader[*models.Account]
	purge  func()
	log    logging.Logger
}

// NewAuthService builds an AuthService. purge empties the response cache.
func NewAuthService(api client.API, st *store.Store, sess *session.Manager, reader *offline.CacheFirstReader[*models.Account], purge func(), log logging.Logger) AuthService {
	if purge == nil {
		purge = func() {}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &authService{api: api, store: st, sess: sess, reader: reader, purge: purge, log: log.With("component", "auth")}
}

func (a *authService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	res, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// a different account may have been cached before
	if prev, _ := a.store.Metadata.Get(ctx, metaAccountID); prev != nil && res.Account != nil && string(prev) != res.Account.ID {
		if err := a.ClearLocalData(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.sess.SetSession(ctx, res.Token); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	acc := res.Account
	if acc == nil {
		if acc, err = a.api.Me(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.remember(ctx, acc); err != nil {
		a.log.Warn(ctx, "own account not cached", "error", err)
	}

	a.log.Info(ctx, "signed in", "account", acc.ID)
	return acc, nil
}

func (a *authService) remember(ctx context.Context, acc *models.Account) error {
	if err := a.store.SaveAccount(ctx, *acc); err != nil {
		return err
	}
	return a.store.Metadata.Set(ctx, metaAccountID, []byte(acc.ID))
}

func (a *authService) Me(ctx context.Context) (offline.Result[*models.Account], error) {
	if !a.sess.Authenticated() {
		return offline.Result[*models.Account]{}, common.ErrNoSession
	}
	return a.reader.Read(ctx, "me", offline.Funcs[*models.Account]{
		LocalFn: func(ctx context.Context) (*models.Account, bool, error) {
			id, err := a.store.Metadata.Get(ctx, metaAccountID)
			if err != nil || id == nil {
				return nil, false, err
			}
			acc, err := a.store.Accounts.GetByID(ctx, string(id))
			return acc, acc != nil, err
		},
		RemoteFn: a.api.Me,
		SaveFn:   a.remember,
	})
}

func (a *authService) CurrentUserID(ctx context.Context) (string, error) {
	if !a.sess.Authenticated() {
		return "", common.ErrNoSession
	}
	id, err := a.store.Metadata.Get(ctx, metaAccountID)
	if err != nil {
		return "", err
	}
	if id != nil {
		return string(id), nil
	}

	acc, err := a.api.Me(ctx)
	if err != nil {
		return "", err
	}
	if err := a.remember(ctx, acc); err != nil {
		a.log.Warn(ctx, "own account not cached", "error", err)
	}
	return acc.ID, nil
}

func (a *authService) Authenticated() bool {
	return a.sess.Authenticated()
}

// Logout wipes the session first so that nothing can fetch with it while
// the local data goes away.
func (a *authService) Logout(ctx context.Context) error {
	err := a.sess.Clear(ctx)
	return errors.Join(err, a.ClearLocalData(ctx))
}

// ClearLocalData drops the response cache, the cached domain records, the
// cart and the remembered account id. Queued telemetry survives.
func (a *authService) ClearLocalData(ctx context.Context) error {
	a.purge()
	if err := a.store.ClearAll(ctx); err != nil {
		return err
	}
	return a.store.Metadata.Delete(ctx, metaAccountID)
}
