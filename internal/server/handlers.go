package server

import (
	"net/http"

	"github.com/Aidin1998/investex/internal/ledger"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createInstrumentRequest struct {
	Name     string          `json:"name" binding:"required,max=100"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity" binding:"gte=0"`
	Risk     int             `json:"risk" binding:"omitempty,min=1,max=5"`
}

type purchaseRequest struct {
	InstrumentID string `json:"instrument_id" binding:"required,uuid"`
	Quantity     int64  `json:"quantity" binding:"required,gt=0"`
}

type depositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=500"`
}

type decisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason" binding:"max=500"`
}

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	resp, err := s.svc.Identities.Register(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	resp, err := s.svc.Identities.Login(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListInstruments(c *gin.Context) {
	instruments, err := s.svc.Catalog.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instruments": instruments})
}

func (s *Server) handleGetInstrument(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	inst, err := s.svc.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) handleCreateInstrument(c *gin.Context) {
	var req createInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	inst, err := s.svc.Catalog.Create(c.Request.Context(), req.Name, req.Price, req.Quantity, req.Risk)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (s *Server) handleUpdateInstrument(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var update models.InstrumentUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	inst, err := s.svc.Catalog.Update(c.Request.Context(), id, update)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) handleGetWallet(c *gin.Context) {
	w, err := s.svc.Wallets.GetOrCreate(c.Request.Context(), currentIdentity(c).UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	w, err := s.svc.Purchases.Purchase(c.Request.Context(), currentIdentity(c).UserID, uuid.MustParse(req.InstrumentID), req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	var page pageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	limit, offset := ledger.Page(page.Limit, page.Offset)
	txs, total, err := s.svc.Ledger.ListTransactions(c.Request.Context(), currentIdentity(c).UserID, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) handleSetLimits(c *gin.Context) {
	userID, err := parseID(c, "user_id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var update models.LimitsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	w, err := s.svc.Wallets.SetLimits(c.Request.Context(), userID, update)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleRequestDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	dep, err := s.svc.Deposits.Request(c.Request.Context(), currentIdentity(c).UserID, req.Amount, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

func (s *Server) handleListDeposits(c *gin.Context) {
	deps, err := s.svc.Deposits.ListForUser(c.Request.Context(), currentIdentity(c).UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deps})
}

func (s *Server) handleListPendingDeposits(c *gin.Context) {
	deps, err := s.svc.Deposits.ListPending(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deps})
}

func (s *Server) handleDecideDeposit(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	dep, err := s.svc.Deposits.Decide(c.Request.Context(), id, currentIdentity(c).UserID, *req.Approve, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	notes, err := s.svc.Ledger.ListNotifications(c.Request.Context(), currentIdentity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	n, err := s.svc.Ledger.MarkRead(c.Request.Context(), id, currentIdentity(c))
	if err != nil {
		if errors.Is(err, errors.NotFound) {
			err = errors.NotFound.Explain("notification not found")
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
