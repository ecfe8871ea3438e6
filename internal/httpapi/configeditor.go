package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amd-agi/genforge/internal/apierrors"
)

type configEditorResponse struct {
	Document interface{} `json:"document"`
	Schema   interface{} `json:"schema"`
}

func (s *Server) handleGetConfigEditor(c *gin.Context) {
	if s.ConfigEditor == nil {
		c.Error(apierrors.New().WithCode(apierrors.InternalError).WithMessage("config editor not configured"))
		return
	}

	doc, err := s.ConfigEditor.Read()
	if err != nil {
		c.Error(err)
		return
	}
	schema, err := s.ConfigEditor.Schema()
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, configEditorResponse{Document: doc, Schema: schema})
}

func (s *Server) handlePostConfigEditor(c *gin.Context) {
	if s.ConfigEditor == nil {
		c.Error(apierrors.New().WithCode(apierrors.InternalError).WithMessage("config editor not configured"))
		return
	}

	var doc interface{}
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.Error(apierrors.New().
			WithCode(apierrors.RequestParameterInvalid).
			WithMessage("malformed config editor document").
			WithError(err))
		return
	}

	if err := s.ConfigEditor.Write(doc); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "requires restart to apply"})
}
