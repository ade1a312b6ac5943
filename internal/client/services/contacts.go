package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
)

// ContactService finds which of the user's contacts have accounts. Only
// SHA-256 hashes of the emails leave the device.
type ContactService interface {
	Match(ctx context.Context, emails []string) (offline.Result[[]models.ContactMatch], error)
}

type contactService struct {
	api   client.API
	store *store.Store
	gate  *offline.GatedFetcher[[]models.ContactMatch]
}

func NewContactService(api client.API, st *store.Store, gate *offline.GatedFetcher[[]models.ContactMatch]) ContactService {
	return &contactService{api: api, store: st, gate: gate}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashEmail is the hex SHA-256 of the normalised address.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// Match returns one entry per distinct input address that has an account,
// sorted by email. Offline, it answers from cached accounts.
func (s *contactService) Match(ctx context.Context, emails []string) (offline.Result[[]models.ContactMatch], error) {
	byHash := map[string]string{}
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			byHash[HashEmail(n)] = n
		}
	}
	if len(byHash) == 0 {
		return offline.Result[[]models.ContactMatch]{Origin: offline.OriginRemote}, nil
	}

	hashes := make([]string, 0, len(byHash))
	normalized := make([]string, 0, len(byHash))
	for h, e := range byHash {
		hashes = append(hashes, h)
		normalized = append(normalized, e)
	}
	sort.Strings(hashes)

	return s.gate.Fetch(ctx, offline.Funcs[[]models.ContactMatch]{
		LocalFn: func(ctx context.Context) ([]models.ContactMatch, bool, error) {
			accs, err := s.store.Accounts.GetByEmails(ctx, normalized)
			if err != nil {
				return nil, false, err
			}
			out := make([]models.ContactMatch, 0, len(accs))
			for _, a := range accs {
				out = append(out, models.ContactMatch{Email: NormalizeEmail(a.Email), Account: a})
			}
			sortMatches(out)
			return out, len(out) > 0, nil
		},
		RemoteFn: func(ctx context.Context) ([]models.ContactMatch, error) {
			found, err := s.api.MatchContacts(ctx, hashes)
			if err != nil {
				return nil, err
			}
			out := make([]models.ContactMatch, 0, len(found))
			for h, a := range found {
				if e, ok := byHash[h]; ok {
					out = append(out, models.ContactMatch{Email: e, Account: a})
				}
			}
			sortMatches(out)
			return out, nil
		},
		SaveFn: func(ctx context.Context, v []models.ContactMatch) error {
			for _, m := range v {
				if err := s.store.SaveAccount(ctx, m.Account); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func sortMatches(ms []models.ContactMatch) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Email < ms[j].Email })
}
