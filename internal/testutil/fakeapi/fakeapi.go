// Package fakeapi is an in-memory marketplace backend for tests. It serves
// the REST surface the client talks to over httptest and exposes toggles to
// simulate outages, expired tokens and rejected telemetry.
package fakeapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("fakeapi-signing-key")

// Server is the fake backend. Its methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	seq       int
	accounts  map[string]models.Account
	passwords map[string]string
	listings  map[string]models.Listing
	orders    map[string]models.Order
	reviews   map[string]models.Review
	access    map[string]string
	refresh   map[string]string
	idem      map[string]string
	events    []models.EventPayload

	down            atomic.Bool
	failEventsAfter atomic.Int32
	eventBatches    atomic.Int32
	refreshCalls    atomic.Int32
	refreshDelay    atomic.Int64
	accessTTL       atomic.Int64
	hits            sync.Map
}

// New starts a fake backend. Callers Close it.
func New() *Server {
	s := &Server{
		accounts:  map[string]models.Account{},
		passwords: map[string]string{},
		listings:  map[string]models.Listing{},
		orders:    map[string]models.Order{},
		reviews:   map[string]models.Review{},
		access:    map[string]string{},
		refresh:   map[string]string{},
		idem:      map[string]string{},
	}
	s.failEventsAfter.Store(-1)
	s.accessTTL.Store(int64(15 * time.Minute))
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count, s.availability)

	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refreshTokens)
	// anonymous devices report telemetry too
	r.Post("/events", s.ingestEvents)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/auth/me", s.me)

		r.Get("/listings", s.listListings)
		r.Post("/listings", s.createListing)
		r.Get("/listings/price-suggestion", s.priceSuggestion)
		r.Get("/listings/{id}", s.getListing)

		r.Get("/orders", s.listOrders)
		r.Post("/orders", s.createOrder)
		r.Get("/orders/{id}", s.getOrder)
		r.Patch("/orders/{id}", s.updateOrder)

		r.Get("/reviews/users/{id}", s.userReviews)
		r.Post("/reviews", s.createReview)

		r.Post("/contacts/match", s.matchContacts)
	})
	return r
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) { s.down.Store(down) }

// ExpireAccessTokens invalidates every issued access token.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]string{}
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = map[string]string{}
}

// SetAccessTTL sets the lifetime of access tokens issued from now on,
// 15 minutes by default.
func (s *Server) SetAccessTTL(d time.Duration) { s.accessTTL.Store(int64(d)) }

// SetRefreshDelay slows down /auth/refresh.
func (s *Server) SetRefreshDelay(d time.Duration) { s.refreshDelay.Store(int64(d)) }

// FailEventsAfter makes /events fail once n batches have been accepted.
// Negative disables the failure.
func (s *Server) FailEventsAfter(n int) {
	s.eventBatches.Store(0)
	s.failEventsAfter.Store(int32(n))
}

func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

// Events returns the accepted telemetry events in arrival order.
func (s *Server) Events() []models.EventPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EventPayload(nil), s.events...)
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// AddAccount registers an account that can log in with password.
func (s *Server) AddAccount(email, password, name string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Account{ID: s.nextID("acc"), Email: email, DisplayName: name, CreatedAt: now()}
	s.accounts[a.ID] = a
	s.passwords[strings.ToLower(email)] = password
	return a
}

func (s *Server) AddListing(sellerID, title, category string, priceCents int64) models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.Listing{
		ID: s.nextID("lst"), SellerID: sellerID, Title: title, Category: category,
		PriceCents: priceCents, Currency: "EUR", Status: models.ListingActive, CreatedAt: now().Add(time.Duration(s.seq) * time.Millisecond),
	}
	s.listings[l.ID] = l
	return l
}

func (s *Server) AddOrder(listingID, buyerID string, status models.OrderStatus) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listings[listingID]
	o := models.Order{
		ID: s.nextID("ord"), ListingID: listingID, BuyerID: buyerID, SellerID: l.SellerID,
		Status: status, AmountCents: l.PriceCents, CreatedAt: now(), UpdatedAt: now(),
	}
	s.orders[o.ID] = o
	return o
}

func (s *Server) AddReview(orderID, raterID string, rating int) models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	rv := models.Review{ID: s.nextID("rev"), OrderID: orderID, RaterID: raterID, RateeID: otherParty(o, raterID), Rating: rating, CreatedAt: now()}
	s.reviews[rv.ID] = rv
	return rv
}

func otherParty(o models.Order, id string) string {
	if id == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

// middleware

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) availability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.down.Load() {
			writeError(w, http.StatusServiceUnavailable, "maintenance")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		uid, ok := s.access[tok]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		r.Header.Set("X-User-ID", uid)
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string { return r.Header.Get("X-User-ID") }

// helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type fieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func writeFieldErrors(w http.ResponseWriter, errs ...fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return false
	}
	return true
}

// issue must be called with s.mu held. Access tokens are HS256 JWTs whose
// exp claim follows the configured TTL; the server still only accepts the
// ones in s.access.
func (s *Server) issue(uid string) map[string]any {
	ttl := time.Duration(s.accessTTL.Load())
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        s.nextID("access"),
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	a, err := tok.SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	r := s.nextID("refresh")
	s.access[a] = uid
	s.refresh[r] = uid
	return map[string]any{"access_token": a, "refresh_token": r, "token_type": "bearer", "expires_in": int(ttl.Seconds())}
}

// handlers

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.passwords[strings.ToLower(in.Email)]
	if !ok || pw != in.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, in.Email) {
			out := s.issue(a.ID)
			out["account"] = a
			writeJSON(w, http.StatusOK, out)
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "invalid credentials")
}

func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.refresh[in.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token invalid")
		return
	}
	delete(s.refresh, in.RefreshToken)
	writeJSON(w, http.StatusOK, s.issue(uid))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.accounts[userID(r)])
}

// listingPayload must be called with s.mu held.
func (s *Server) listingPayload(l models.Listing) models.ListingPayload {
	seller := s.accounts[l.SellerID]
	return models.ListingPayload{Listing: l, Seller: &seller}
}

func (s *Server) orderPayload(o models.Order) models.OrderPayload {
	buyer, seller := s.accounts[o.BuyerID], s.accounts[o.SellerID]
	lp := s.listingPayload(s.listings[o.ListingID])
	return models.OrderPayload{Order: o, Buyer: &buyer, Seller: &seller, Listing: &lp}
}

func (s *Server) reviewPayload(rv models.Review) models.ReviewPayload {
	rater, ratee := s.accounts[rv.RaterID], s.accounts[rv.RateeID]
	op := s.orderPayload(s.orders[rv.OrderID])
	return models.ReviewPayload{Review: rv, Rater: &rater, Ratee: &ratee, Order: &op}
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ListingPayload{}
	for _, l := range s.listings {
		if v := q.Get("seller_id"); v != "" && l.SellerID != v {
			continue
		}
		if v := q.Get("category"); v != "" && l.Category != v {
			continue
		}
		if v := strings.ToLower(q.Get("q")); v != "" && !strings.Contains(strings.ToLower(l.Title+" "+l.Description), v) {
			continue
		}
		out = append(out, s.listingPayload(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, s.listingPayload(l))
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var in models.NewListing
	if !decode(w, r, &in) {
		return
	}
	var errs []fieldError
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, fieldError{Loc: []string{"body", "title"}, Msg: "field required"})
	}
	if in.PriceCents <= 0 {
		errs = append(errs, fieldError{Loc: []string{"body", "price_cents"}, Msg: "must be positive"})
	}
	if len(errs) > 0 {
		writeFieldErrors(w, errs...)
		return
	}
	if in.Currency == "" {
		in.Currency = "EUR"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.Listing{
		ID: s.nextID("lst"), SellerID: userID(r), Title: in.Title, Description: in.Description,
		Category: in.Category, PriceCents: in.PriceCents, Currency: in.Currency,
		Status: models.ListingActive, CreatedAt: now(),
	}
	s.listings[l.ID] = l
	writeJSON(w, http.StatusCreated, s.listingPayload(l))
}

func (s *Server) priceSuggestion(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	s.mu.Lock()
	var prices []int64
	for _, l := range s.listings {
		if l.Category == category {
			prices = append(prices, l.PriceCents)
		}
	}
	s.mu.Unlock()

	out := models.PriceSuggestion{Category: category, Currency: "EUR", SampleSize: len(prices)}
	if len(prices) >= 3 {
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
		pct := func(p int) *int64 {
			v := prices[(len(prices)-1)*p/100]
			return &v
		}
		out.P25, out.P50, out.P75 = pct(25), pct(50), pct(75)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.OrderPayload{}
	for _, o := range s.orders {
		if o.BuyerID != uid && o.SellerID != uid {
			continue
		}
		if v := q.Get("buyer_id"); v != "" && o.BuyerID != v {
			continue
		}
		if v := q.Get("seller_id"); v != "" && o.SellerID != v {
			continue
		}
		if v := q.Get("status"); v != "" && string(o.Status) != v {
			continue
		}
		out = append(out, s.orderPayload(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, s.orderPayload(o))
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ListingID string `json:"listing_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	uid := userID(r)
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idem[key]; ok && key != "" {
		writeJSON(w, http.StatusOK, s.orderPayload(s.orders[id]))
		return
	}
	l, ok := s.listings[in.ListingID]
	if !ok {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if l.SellerID == uid {
		writeError(w, http.StatusBadRequest, "cannot buy your own listing")
		return
	}
	if l.Status != models.ListingActive {
		writeError(w, http.StatusConflict, "listing is not available")
		return
	}
	o := models.Order{
		ID: s.nextID("ord"), ListingID: l.ID, BuyerID: uid, SellerID: l.SellerID,
		Status: models.OrderCreated, AmountCents: l.PriceCents, CreatedAt: now(), UpdatedAt: now(),
	}
	s.orders[o.ID] = o
	if key != "" {
		s.idem[key] = o.ID
	}
	writeJSON(w, http.StatusCreated, s.orderPayload(o))
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.OrderStatus `json:"status"`
	}
	if !decode(w, r, &in) {
		return
	}
	if !in.Status.Valid() {
		writeFieldErrors(w, fieldError{Loc: []string{"body", "status"}, Msg: "unknown status"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if o.Status.IsFinal() {
		writeError(w, http.StatusConflict, "order status is final")
		return
	}
	o.Status = in.Status
	o.UpdatedAt = now()
	s.orders[o.ID] = o
	if o.Status == models.OrderCompleted {
		l := s.listings[o.ListingID]
		l.Status = models.ListingSold
		s.listings[l.ID] = l
	}
	writeJSON(w, http.StatusOK, s.orderPayload(o))
}

func (s *Server) userReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ReviewPayload{}
	for _, rv := range s.reviews {
		if rv.RateeID == id {
			out = append(out, s.reviewPayload(rv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var in models.NewReview
	if !decode(w, r, &in) {
		return
	}
	if in.Rating < 1 || in.Rating > 5 {
		writeFieldErrors(w, fieldError{Loc: []string{"body", "rating"}, Msg: "must be between 1 and 5"})
		return
	}
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[in.OrderID]
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if o.BuyerID != uid && o.SellerID != uid {
		writeError(w, http.StatusForbidden, "not a party of this order")
		return
	}
	rv := models.Review{OrderID: o.ID, RaterID: uid, RateeID: otherParty(o, uid), Rating: in.Rating, Comment: in.Comment, CreatedAt: now()}
	for id, existing := range s.reviews {
		if existing.OrderID == o.ID {
			delete(s.reviews, id)
		}
	}
	rv.ID = s.nextID("rev")
	s.reviews[rv.ID] = rv
	writeJSON(w, http.StatusCreated, s.reviewPayload(rv))
}

func (s *Server) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Events []models.EventPayload `json:"events"`
	}
	if !decode(w, r, &in) {
		return
	}
	if limit := s.failEventsAfter.Load(); limit >= 0 && s.eventBatches.Load() >= limit {
		writeError(w, http.StatusInternalServerError, "ingest unavailable")
		return
	}
	s.eventBatches.Add(1)

	s.mu.Lock()
	s.events = append(s.events, in.Events...)
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(in.Events)})
}

// HashEmail is how the backend indexes contact emails.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func (s *Server) matchContacts(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Hashes []string `json:"hashes"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byHash := map[string]models.Account{}
	for _, a := range s.accounts {
		byHash[HashEmail(a.Email)] = a
	}
	type match struct {
		Hash    string         `json:"hash"`
		Account models.Account `json:"account"`
	}
	out := []match{}
	for _, h := range in.Hashes {
		if a, ok := byHash[h]; ok {
			out = append(out, match{Hash: h, Account: a})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}
