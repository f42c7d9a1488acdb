package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/contentplan-backend/internal/http/response"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/services"
)

type PlanHandler struct {
	plans services.StrategyService
}

func NewPlanHandler(plans services.StrategyService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

func planID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_plan_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/strategy-plans
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var in services.CreatePlanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	plan, err := h.plans.CreatePlan(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"plan": plan})
}

// GET /api/strategy-plans?brand_id=
func (h *PlanHandler) ListPlans(c *gin.Context) {
	brandID, err := uuid.Parse(c.Query("brand_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_brand_id", err)
		return
	}
	plans, err := h.plans.ListPlansByBrand(dbctx.Context{Ctx: c.Request.Context()}, brandID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plans": plans})
}

// GET /api/strategy-plans/:id
func (h *PlanHandler) GetPlan(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	plan, err := h.plans.GetPlan(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}

// GET /api/strategy-plans/:id/items
func (h *PlanHandler) ListItems(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	items, err := h.plans.ListItems(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items, "count": len(items)})
}

// POST /api/strategy-plans/:id/creator
func (h *PlanHandler) StartCreator(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	plan, err := h.plans.StartCreator(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"plan": plan})
}

// POST /api/strategy-plans/:id/materialize
func (h *PlanHandler) Materialize(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	items, err := h.plans.Rematerialize(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items, "count": len(items)})
}

// GET /api/ai-responses?plan_id=&limit=
func (h *PlanHandler) ListAiResponses(c *gin.Context) {
	id, err := uuid.Parse(c.Query("plan_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_plan_id", err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.plans.ListAiResponses(dbctx.Context{Ctx: c.Request.Context()}, id, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ai_responses": rows})
}
