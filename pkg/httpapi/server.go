package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Ajie-upup/ajie-comment/pkg/cache"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
	"github.com/Ajie-upup/ajie-comment/pkg/service"
)

// SeckillUsecase 下单准入
type SeckillUsecase interface {
	SeckillVoucher(ctx context.Context, voucherID, userID int64) (int64, error)
}

// ShopUsecase 商铺读写
type ShopUsecase interface {
	QueryByID(ctx context.Context, id int64) (*model.Shop, error)
	Update(ctx context.Context, shop *model.Shop) error
}

// VoucherUsecase 优惠券发布与查询
type VoucherUsecase interface {
	AddSeckillVoucher(ctx context.Context, voucher *model.SeckillVoucher) error
	QueryVoucher(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error)
}

type Server struct {
	Router   *mux.Router
	seckill  SeckillUsecase
	shops    ShopUsecase
	vouchers VoucherUsecase
	log      *logrus.Logger
}

func NewServer(seckill SeckillUsecase, shops ShopUsecase, vouchers VoucherUsecase, log *logrus.Logger) *Server {
	s := &Server{Router: mux.NewRouter(), seckill: seckill, shops: shops, vouchers: vouchers, log: log}
	s.Router.HandleFunc("/api/voucher-order/seckill/{id}", s.handleSeckill).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/voucher/seckill", s.handleAddVoucher).Methods(http.MethodPost)
	s.Router.HandleFunc("/api/voucher/{id}", s.handleGetVoucher).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/shop/{id}", s.handleGetShop).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/shop", s.handleUpdateShop).Methods(http.MethodPut)
	return s
}

type seckillResponse struct {
	OrderID int64  `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSeckill(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid voucher id", http.StatusBadRequest)
		return
	}
	// 买家身份显式随请求传递，认证由外层网关负责
	userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	orderID, err := s.seckill.SeckillVoucher(r.Context(), voucherID, userID)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, seckillResponse{OrderID: orderID})
	case service.ErrOutOfStock:
		writeJSON(w, http.StatusConflict, seckillResponse{Error: "stock not enough"})
	case service.ErrDuplicateOrder:
		writeJSON(w, http.StatusConflict, seckillResponse{Error: "duplicate order"})
	default:
		s.log.Errorf("[HTTP] seckill failed: %v", err)
		http.Error(w, "system busy", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleAddVoucher(w http.ResponseWriter, r *http.Request) {
	var voucher model.SeckillVoucher
	if err := json.NewDecoder(r.Body).Decode(&voucher); err != nil || voucher.VoucherID == 0 {
		http.Error(w, "invalid voucher payload", http.StatusBadRequest)
		return
	}

	if err := s.vouchers.AddSeckillVoucher(r.Context(), &voucher); err != nil {
		s.log.Errorf("[HTTP] add voucher failed: %v", err)
		http.Error(w, "system busy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, voucher)
}

func (s *Server) handleGetVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid voucher id", http.StatusBadRequest)
		return
	}

	voucher, err := s.vouchers.QueryVoucher(r.Context(), id)
	if err == cache.ErrNotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Errorf("[HTTP] query voucher failed: %v", err)
		http.Error(w, "system busy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid shop id", http.StatusBadRequest)
		return
	}

	shop, err := s.shops.QueryByID(r.Context(), id)
	if err == cache.ErrNotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Errorf("[HTTP] query shop failed: %v", err)
		http.Error(w, "system busy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (s *Server) handleUpdateShop(w http.ResponseWriter, r *http.Request) {
	var shop model.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil || shop.ID == 0 {
		http.Error(w, "invalid shop payload", http.StatusBadRequest)
		return
	}

	if err := s.shops.Update(r.Context(), &shop); err != nil {
		s.log.Errorf("[HTTP] update shop failed: %v", err)
		http.Error(w, "system busy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
