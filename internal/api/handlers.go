package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/session"
)

type cartResponse struct {
	Owner         string                `json:"owner"`
	Items         []domain.CartLineItem `json:"items"`
	Count         int                   `json:"count"`
	TotalQuantity int                   `json:"totalQuantity"`
	Subtotal      string                `json:"subtotal"`
}

type compareResponse struct {
	Entries []domain.CompareEntry `json:"entries"`
	Count   int                   `json:"count"`
	Max     int                   `json:"max"`
}

type recentlyViewedResponse struct {
	Entries []domain.RecentlyViewedEntry `json:"entries"`
	Count   int                          `json:"count"`
}

type sessionResponse struct {
	DeviceID string       `json:"deviceId"`
	Identity string       `json:"identity"`
	Guest    bool         `json:"guest"`
	Cart     cartResponse `json:"cart"`
}

type addCartItemRequest struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type loginRequest struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

func cartView(sess *session.Session) cartResponse {
	return cartResponse{
		Owner:         sess.Cart.Owner().String(),
		Items:         sess.Cart.Items(),
		Count:         sess.Cart.Count(),
		TotalQuantity: sess.Cart.TotalQuantity(),
		Subtotal:      sess.Cart.Subtotal().StringFixed(2),
	}
}

func (s *server) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cartView(sessionFrom(r)))
}

func (s *server) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Cart.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity > domain.CartMaxQuantity {
		writeError(w, s.logger, domain.ErrCartQuantityInvalid)
		return
	}
	sess := sessionFrom(r)
	if err := sess.Cart.AddProduct(r.Context(), req.Product, req.Quantity); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartView(sess))
}

// setCartItemQuantity выставляет количество; 0 и меньше удаляют позицию.
func (s *server) setCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	s.changeQuantity(w, r, false)
}

// updateCartItemQuantity меняет количество существующей позиции и никогда её не удаляет.
func (s *server) updateCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	s.changeQuantity(w, r, true)
}

func (s *server) changeQuantity(w http.ResponseWriter, r *http.Request, strict bool) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeMessage(w, http.StatusBadRequest, "quantity is required")
		return
	}

	sess := sessionFrom(r)
	var err error
	if strict {
		err = sess.Cart.UpdateQuantity(r.Context(), productID, *req.Quantity)
	} else {
		err = sess.Cart.SetQuantity(r.Context(), productID, *req.Quantity)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cartView(sess))
}

func (s *server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	sess := sessionFrom(r)
	sess.Cart.RemoveItem(r.Context(), productID)
	writeJSON(w, http.StatusOK, cartView(sess))
}

func compareView(sess *session.Session) compareResponse {
	return compareResponse{
		Entries: sess.Compare.Entries(),
		Count:   sess.Compare.Count(),
		Max:     domain.CompareMaxItems,
	}
}

func (s *server) getCompare(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, compareView(sessionFrom(r)))
}

func (s *server) addCompare(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !decodeJSON(w, r, &product) {
		return
	}
	sess := sessionFrom(r)
	if err := sess.Compare.Add(r.Context(), product); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, compareView(sess))
}

func (s *server) removeCompare(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	sess := sessionFrom(r)
	sess.Compare.Remove(r.Context(), productID)
	writeJSON(w, http.StatusOK, compareView(sess))
}

func (s *server) clearCompare(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Compare.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func recentlyViewedView(sess *session.Session) recentlyViewedResponse {
	return recentlyViewedResponse{
		Entries: sess.RecentlyViewed.List(),
		Count:   sess.RecentlyViewed.Count(),
	}
}

func (s *server) getRecentlyViewed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, recentlyViewedView(sessionFrom(r)))
}

func (s *server) recordView(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !decodeJSON(w, r, &product) {
		return
	}
	sess := sessionFrom(r)
	if err := sess.RecentlyViewed.RecordView(r.Context(), product); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recentlyViewedView(sess))
}

func (s *server) clearRecentlyViewed(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).RecentlyViewed.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func sessionView(r *http.Request, sess *session.Session) sessionResponse {
	id := sess.Identity(r.Context())
	return sessionResponse{
		DeviceID: sess.DeviceID(),
		Identity: id.String(),
		Guest:    id.IsGuest(),
		Cart:     cartView(sess),
	}
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionView(r, sessionFrom(r)))
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess := sessionFrom(r)
	if err := sess.Login(r.Context(), req.Token, req.User); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(r, sess))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Logout(r.Context()); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(r, sess))
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "productId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "productId must be a positive integer")
		return 0, false
	}
	return id, true
}
