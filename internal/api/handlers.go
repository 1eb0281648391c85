package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hammermarket/auctiond/internal/engine"
)

type placeBidRequest struct {
	AuctionID string `json:"auction_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
}

func (h *Handler) placeBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.engine.PlaceBid(c.Request.Context(), req.AuctionID, userID(c), req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

type buyoutRequest struct {
	AuctionID string `json:"auction_id" binding:"required"`
}

func (h *Handler) buyout(c *gin.Context) {
	var req buyoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.engine.Buyout(c.Request.Context(), req.AuctionID, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

type createAuctionRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category"`
	StartPrice  int64     `json:"start_price" binding:"required"`
	MinBidStep  int64     `json:"min_bid_step"`
	BuyoutPrice *int64    `json:"buyout_price"`
	StartAt     time.Time `json:"start_at" binding:"required"`
	EndAt       time.Time `json:"end_at" binding:"required"`
}

func (h *Handler) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	auction, err := h.engine.CreateAuction(c.Request.Context(), engine.CreateAuctionParams{
		SellerID:    userID(c),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		StartPrice:  req.StartPrice,
		MinBidStep:  req.MinBidStep,
		BuyoutPrice: req.BuyoutPrice,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, auction)
}

func (h *Handler) cancelAuction(c *gin.Context) {
	if err := h.engine.CancelAuction(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAuctions(c *gin.Context) {
	auctions, err := h.engine.ListAuctions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, auctions)
}

func (h *Handler) getAuction(c *gin.Context) {
	auction, err := h.engine.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, auction)
}

func (h *Handler) auctionBids(c *gin.Context) {
	bids, err := h.engine.AuctionBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

func (h *Handler) myAccount(c *gin.Context) {
	account, err := h.engine.AccountOf(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) myBids(c *gin.Context) {
	bids, err := h.engine.UserBids(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// subscribe upgrades the connection to a websocket and streams auction events.
func (h *Handler) subscribe(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request, c.Param("id")); err != nil {
		// Upgrade failures have already written a response.
		h.logger.WarnContext(c.Request.Context(), "websocket upgrade failed",
			"auction_id", c.Param("id"), "error", err)
	}
}
