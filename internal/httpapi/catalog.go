package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Catalog.Build())
}
