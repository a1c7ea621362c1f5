package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/queryproc"
)

type captionRequest struct {
	Image string `json:"image" validate:"required"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

func (s *Server) processCaption(c *gin.Context) {
	var req captionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		abort(c, http.StatusBadRequest, "Missing image in request")
		return
	}

	img, err := capture.ParseEncodedImage(req.Image)
	if err != nil {
		s.log.WithError(err).Warn("invalid data URL received")
		abort(c, http.StatusBadRequest, "Invalid image data URL")
		return
	}

	text, err := s.captioner.Caption(c.Request.Context(), img)
	if err != nil {
		s.log.WithError(err).Error("inference failed")
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, captionResponse{Caption: text})
}

func (s *Server) processQuery(c *gin.Context) {
	var req queryproc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	s.log.WithField("query", req.Query).WithField("image", req.B64Image != "").Info("received process_query request")

	resp, err := s.queries.Process(c.Request.Context(), req)
	if err != nil {
		abort(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}
