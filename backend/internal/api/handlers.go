package api

import (
	"net/http"
	"strconv"
	"time"

	"peoplegraph/backend/internal/constants"
	"peoplegraph/backend/internal/ingest"
	"peoplegraph/backend/internal/mutation"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Request parsing
// ============================================================================

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+name+": must be an integer")
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (int64, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		fail(c, http.StatusBadRequest, "missing query parameter "+name)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+name+": must be an integer")
		return 0, false
	}
	return id, true
}

// queryLimit reads ?limit, falling back to def and capping at MaxQueryLimit.
// Non-positive values pass through so the engine rejects them.
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid limit: must be an integer")
		return 0, false
	}
	return min(n, constants.MaxQueryLimit), true
}

// ============================================================================
// Health
// ============================================================================

func (h *handler) health(c *gin.Context) {
	data := gin.H{
		"message":   "People graph service is healthy",
		"timestamp": time.Now().UTC(),
		"service":   constants.ServiceName,
		"status":    "UP",
	}
	if h.Store != nil {
		data["graph"] = h.Store.Stats()
	}
	respond(c, http.StatusOK, "Service is healthy", data)
}

// ============================================================================
// Mutations
// ============================================================================

func (h *handler) connectUsers(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "targetId")
	if !ok {
		return
	}

	created, err := h.Mutations.ConnectUsers(c.Request.Context(), userID, targetID)
	if err != nil {
		h.handleError(c, "connect_users", err)
		return
	}

	respond(c, http.StatusCreated, "Connection created successfully", gin.H{
		"fromUserId": userID,
		"toUserId":   targetID,
		"created":    created,
	})
}

func (h *handler) followCompany(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	companyID, ok := pathID(c, "companyId")
	if !ok {
		return
	}

	if err := h.Mutations.FollowCompany(c.Request.Context(), userID, companyID); err != nil {
		h.handleError(c, "follow_company", err)
		return
	}

	respond(c, http.StatusCreated, "Company followed successfully", gin.H{
		"userId":    userID,
		"companyId": companyID,
	})
}

type workExperienceRequest struct {
	CompanyID int64   `json:"companyId" binding:"required"`
	Position  string  `json:"position" binding:"required"`
	StartDate string  `json:"startDate" binding:"required"`
	EndDate   *string `json:"endDate"`
}

func (h *handler) addWorkExperience(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req workExperienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	edge, err := h.Mutations.AddWorkExperience(c.Request.Context(), mutation.WorkExperience{
		UserID:    userID,
		CompanyID: req.CompanyID,
		Position:  req.Position,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		h.handleError(c, "add_work_experience", err)
		return
	}

	respond(c, http.StatusCreated, "Work experience added successfully", gin.H{
		"userId":    userID,
		"companyId": req.CompanyID,
		"position":  req.Position,
		"edgeId":    edge.ID,
	})
}

func (h *handler) addSkill(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	skill := c.Param("skillName")

	if err := h.Mutations.AddSkill(c.Request.Context(), userID, skill); err != nil {
		h.handleError(c, "add_skill", err)
		return
	}

	respond(c, http.StatusCreated, "Skill added successfully", gin.H{
		"userId":    userID,
		"skillName": skill,
	})
}

type endorseRequest struct {
	EndorserID int64 `json:"endorserId" binding:"required"`
}

func (h *handler) endorseSkill(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req endorseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	skill := c.Param("skillName")

	count, err := h.Mutations.EndorseSkill(c.Request.Context(), mutation.Endorsement{
		EndorserID: req.EndorserID,
		UserID:     userID,
		SkillName:  skill,
	})
	if err != nil {
		h.handleError(c, "endorse_skill", err)
		return
	}

	respond(c, http.StatusCreated, "Skill endorsed successfully", gin.H{
		"userId":       userID,
		"endorserId":   req.EndorserID,
		"skillName":    skill,
		"endorsements": count,
	})
}

// ============================================================================
// Queries
// ============================================================================

func (h *handler) connectionSuggestions(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	limit, ok := queryLimit(c, constants.DefaultSuggestionLimit)
	if !ok {
		return
	}

	suggestions, err := h.Queries.ConnectionSuggestions(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleError(c, "connection_suggestions", err)
		return
	}
	respond(c, http.StatusOK, "Connection suggestions retrieved successfully", gin.H{"suggestions": suggestions})
}

func (h *handler) peopleYouMayKnow(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	limit, ok := queryLimit(c, constants.DefaultPeopleYouMayKnowLimit)
	if !ok {
		return
	}

	suggestions, err := h.Queries.PeopleYouMayKnow(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleError(c, "people_you_may_know", err)
		return
	}
	respond(c, http.StatusOK, "People you may know retrieved successfully", gin.H{"suggestions": suggestions})
}

func (h *handler) mutualConnections(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "targetUserId")
	if !ok {
		return
	}

	mutual, err := h.Queries.MutualConnections(c.Request.Context(), userID, targetID)
	if err != nil {
		h.handleError(c, "mutual_connections", err)
		return
	}
	respond(c, http.StatusOK, "Mutual connections retrieved successfully", gin.H{"mutualConnections": mutual})
}

func (h *handler) affinityRanking(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	limit, ok := queryLimit(c, constants.DefaultAffinityLimit)
	if !ok {
		return
	}

	ranking, err := h.Queries.AffinityRanking(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleError(c, "affinity_ranking", err)
		return
	}
	respond(c, http.StatusOK, "Affinity ranking retrieved successfully", gin.H{"affinityRanking": ranking})
}

func (h *handler) connectionCount(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	count, err := h.Queries.ConnectionCount(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, "connection_count", err)
		return
	}
	respond(c, http.StatusOK, "Connection count retrieved successfully", gin.H{"connectionCount": count})
}

func (h *handler) shortestPath(c *gin.Context) {
	from, ok := queryID(c, "from")
	if !ok {
		return
	}
	to, ok := queryID(c, "to")
	if !ok {
		return
	}

	result, err := h.Queries.FindShortestPath(c.Request.Context(), from, to)
	if err != nil {
		h.handleError(c, "shortest_path", err)
		return
	}
	msg := "Shortest path found"
	if !result.Connected {
		msg = "Users are not connected"
	}
	respond(c, http.StatusOK, msg, result)
}

// ============================================================================
// Sync
// ============================================================================

func (h *handler) syncUser(c *gin.Context) {
	var payload ingest.UserPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Sync.SyncUser(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, "sync_user", err)
		return
	}
	respond(c, http.StatusCreated, "User synced successfully", gin.H{"user": user})
}

func (h *handler) syncCompany(c *gin.Context) {
	var payload ingest.CompanyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	company, err := h.Sync.SyncCompany(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, "sync_company", err)
		return
	}
	respond(c, http.StatusCreated, "Company synced successfully", gin.H{"company": company})
}
