package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/smallbiznis/nestbill/pkg/db/pagination"
)

type startTrialRequest struct {
	CustomerRef  string `json:"customer_ref"`
	PlanCode     string `json:"plan_code"`
	Jurisdiction string `json:"jurisdiction"`
}

func (s *Server) StartTrial(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req startTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerRef := strings.TrimSpace(req.CustomerRef)
	if actor.IsCustomer() {
		if customerRef == "" {
			customerRef = actor.ID
		}
		if customerRef != actor.ID {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	resp, err := s.subscriptionSvc.StartTrial(c.Request.Context(), subscriptiondomain.StartTrialRequest{
		CustomerRef:  customerRef,
		PlanCode:     strings.TrimSpace(req.PlanCode),
		Jurisdiction: strings.TrimSpace(req.Jurisdiction),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, ok := s.ownedSubscriptionID(c)
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConvertSubscription(c *gin.Context) {
	id, ok := s.ownedSubscriptionID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SubscriptionID = id

	resp, err := s.subscriptionSvc.ConvertToPaid(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := s.ownedSubscriptionID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.SubscriptionID = id

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBillingRecords(c *gin.Context) {
	id, ok := s.ownedSubscriptionID(c)
	if !ok {
		return
	}

	page, err := parseOptionalInt(c.Query("page"))
	if err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", "invalid page"))
		return
	}
	size, err := parseOptionalInt(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.subscriptionSvc.BillingHistory(c.Request.Context(), invoicedomain.HistoryRequest{
		SubscriptionID: id,
		Page:           pagination.NewPage(page, size),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageMeta})
}

// ownedSubscriptionID parses the :id param and hides subscriptions that
// belong to another customer behind a 404.
func (s *Server) ownedSubscriptionID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}

	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	if !actor.IsCustomer() {
		return id, true
	}

	sub, err := s.subs.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	if sub == nil || !actor.Owns(sub.CustomerRef) {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return 0, false
	}
	return id, true
}
