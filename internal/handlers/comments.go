package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tripshare/backend/internal/interaction"
	"github.com/emilythestrangee/tripshare/backend/internal/middleware"
)

type CommentHandler struct {
	engine *interaction.Engine
}

func NewCommentHandler(e *interaction.Engine) *CommentHandler {
	return &CommentHandler{engine: e}
}

// CreateComment creates a new comment on a post
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var input struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	comment, err := h.engine.AddComment(c.Request.Context(), c.Param("id"), middleware.UserID(c), input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment added successfully",
		"comment": comment,
	})
}
